// Package version holds build-time version metadata.
package version

import "runtime"

var (
	Version   = "dev"
	Commit    = "none"
	Date      = "unknown"
	GoVersion = runtime.Version()
	FIPS      = "false"
)

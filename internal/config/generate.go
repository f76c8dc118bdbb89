package config

// DefaultConfigTOML is a complete, commented sample osiris.toml.
const DefaultConfigTOML = `# Osiris configuration file
# See https://github.com/osirisdev/osiris for documentation.

[kernel]
# max_processes = 1024          # process table capacity
# std_queue_size = 32           # per-signal queue depth, standard signals
# rt_queue_size = 128           # per-signal queue depth, real-time signals
# max_pending = 1024            # total pending signals per process
# sweep_interval = 60           # seconds between zombie sweeps (0 = disabled)
# zombie_max_age = 300          # seconds before a zombie is force-reaped
# shutdown_timeout = 30         # seconds to wait for graceful shutdown

[logging]
# file = ""                     # daemon log file path (default: stdout), or "syslog"
# level = "info"                # debug, info, warn, error
# format = "json"               # json, text, or auto (text on a terminal)
# max_bytes = "50MB"            # rotate the log file at this size (0 = never)
# backups = 3                   # rotated files to keep

[server.unix]
# file = "/var/run/osiris.sock" # Unix socket path
# chmod = "0700"                # socket file permissions
# chown = ""                    # socket owner (user:group)

[server.http]
# enabled = false               # enable TCP HTTP server
# listen = "127.0.0.1:9321"    # TCP listen address
# username = ""                 # HTTP Basic Auth username
# password = ""                 # bcrypt-hashed password

# Webhook definitions
# [webhooks.slack]
# url = "https://hooks.slack.com/..."
# events = ["SIGNAL_QUEUE_OVERFLOW", "PROCESS_FORCE_KILLED"]
# timeout = 5
# retries = 3
# [webhooks.slack.headers]
# Authorization = "Bearer ${SLACK_TOKEN}"
`

package sig

import (
	"math/bits"
	"strings"
)

// Set is a bitset over the signal-number space. Bit n-1 represents
// signal n, so the full 1..63 range fits in a single word.
type Set uint64

// validBits masks off bit positions that do not correspond to a signal.
const validBits Set = (1 << (NSig - 1)) - 1

// EmptySet returns a set with no signals.
func EmptySet() Set { return 0 }

// FullSet returns a set containing every valid signal.
func FullSet() Set { return validBits }

// Add sets the bit for signal n. Invalid numbers are ignored.
func (s *Set) Add(n int) {
	if Valid(n) {
		*s |= 1 << uint(n-1)
	}
}

// Delete clears the bit for signal n. Invalid numbers are ignored.
func (s *Set) Delete(n int) {
	if Valid(n) {
		*s &^= 1 << uint(n-1)
	}
}

// Has reports whether signal n is in the set.
func (s Set) Has(n int) bool {
	return Valid(n) && s&(1<<uint(n-1)) != 0
}

// Count returns the number of signals in the set.
func (s Set) Count() int { return bits.OnesCount64(uint64(s & validBits)) }

// IsEmpty reports whether the set contains no signals.
func (s Set) IsEmpty() bool { return s&validBits == 0 }

// Union returns s ∪ o.
func (s Set) Union(o Set) Set { return s | o }

// Intersect returns s ∩ o.
func (s Set) Intersect(o Set) Set { return s & o }

// Not returns the complement of s within the valid signal range.
func (s Set) Not() Set { return ^s & validBits }

// Mask returns the raw bitmask representation.
func (s Set) Mask() uint64 { return uint64(s & validBits) }

// FromMask builds a Set from a raw bitmask, discarding invalid bits.
func FromMask(m uint64) Set { return Set(m) & validBits }

// Of builds a Set from a list of signal numbers.
func Of(sigs ...int) Set {
	var s Set
	for _, n := range sigs {
		s.Add(n)
	}
	return s
}

// String lists the member signal names, for logging.
func (s Set) String() string {
	if s.IsEmpty() {
		return "(empty)"
	}
	var b strings.Builder
	first := true
	for n := 1; n < NSig; n++ {
		if s.Has(n) {
			if !first {
				b.WriteByte(',')
			}
			b.WriteString(Name(n))
			first = false
		}
	}
	return b.String()
}

// Package version compares dotted runtime version strings.
//
// Versions are sequences of non-negative integers separated by dots
// ("12", "13.1", "4.0.2"). Missing trailing segments compare as zero, so
// "10" == "10.0" == "10.0.0". The special value Infinity stands for a
// version that is never reached: it sorts above every finite version and is
// used by compatibility tables to say "never natively supported".
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Infinity is the never-reached sentinel version.
const Infinity = "Infinity"

// IsInfinity reports whether v is the Infinity sentinel.
func IsInfinity(v string) bool {
	return v == Infinity
}

// Validate checks that v is either Infinity or a dotted numeric version.
func Validate(v string) error {
	if IsInfinity(v) {
		return nil
	}
	_, err := parse(v)
	return err
}

// Compare compares two versions and returns:
// -1 if a < b
//
//	0 if a == b
//	1 if a > b
//
// Infinity is greater than every finite version and equal to itself.
// Malformed versions compare as if every malformed segment were zero;
// callers that need strictness run Validate first.
func Compare(a, b string) int {
	aInf, bInf := IsInfinity(a), IsInfinity(b)
	switch {
	case aInf && bInf:
		return 0
	case aInf:
		return 1
	case bInf:
		return -1
	}

	as, _ := parse(a)
	bs, _ := parse(b)
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		var x, y uint64
		if i < len(as) {
			x = as[i]
		}
		if i < len(bs) {
			y = bs[i]
		}
		if x < y {
			return -1
		}
		if x > y {
			return 1
		}
	}
	return 0
}

// AtLeast reports whether v >= minVersion. Infinity is never reached.
func AtLeast(v, minVersion string) bool {
	if IsInfinity(minVersion) {
		return false
	}
	return Compare(v, minVersion) >= 0
}

// Highest returns the higher of two versions. Infinity loses to any finite
// version so a "never" placeholder cannot displace a real recorded version.
// An empty string is treated as absent. The result does not depend on
// argument order.
func Highest(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	case IsInfinity(a):
		return b
	case IsInfinity(b):
		return a
	}
	switch c := Compare(a, b); {
	case c > 0:
		return a
	case c < 0:
		return b
	case b < a:
		// equal values spelled differently ("10" vs "10.0")
		return b
	}
	return a
}

// parse splits a dotted numeric version into segments.
func parse(v string) ([]uint64, error) {
	if v == "" {
		return nil, fmt.Errorf("empty version")
	}
	parts := strings.Split(v, ".")
	segs := make([]uint64, len(parts))
	var firstErr error
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("invalid version %q: segment %q is not a number", v, p)
			}
			continue
		}
		segs[i] = n
	}
	return segs, firstErr
}

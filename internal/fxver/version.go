// Package fxver implements the four-component version type shared by the
// identity and redirect packages (major.minor.build.revision), with
// lexicographic comparison and missing components treated as zero.
package fxver

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a four-component assembly version. The zero value compares
// equal to "0.0.0.0".
type Version struct {
	Major, Minor, Build, Revision int
}

// Parse parses a dotted version string with one to four components.
// Missing trailing components default to zero.
func Parse(s string) (Version, error) {
	var v Version
	if s == "" {
		return v, nil
	}
	parts := strings.Split(s, ".")
	if len(parts) > 4 {
		return v, fmt.Errorf("fxver: too many components in version %q", s)
	}
	fields := [4]*int{&v.Major, &v.Minor, &v.Build, &v.Revision}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("fxver: invalid version component %q in %q", p, s)
		}
		*fields[i] = n
	}
	return v, nil
}

// MustParse is like Parse but panics on error; intended for tests and
// compile-time constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the canonical four-component form.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

// IsZero reports whether v is the zero version ("0.0.0.0").
func (v Version) IsZero() bool {
	return v == Version{}
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater than
// other, comparing (major, minor, build, revision) lexicographically.
func (v Version) Compare(other Version) int {
	if d := v.Major - other.Major; d != 0 {
		return sign(d)
	}
	if d := v.Minor - other.Minor; d != 0 {
		return sign(d)
	}
	if d := v.Build - other.Build; d != 0 {
		return sign(d)
	}
	if d := v.Revision - other.Revision; d != 0 {
		return sign(d)
	}
	return 0
}

func sign(d int) int {
	switch {
	case d < 0:
		return -1
	case d > 0:
		return 1
	default:
		return 0
	}
}

// Less reports whether v sorts strictly before other.
func (v Version) Less(other Version) bool { return v.Compare(other) < 0 }

// Range is an inclusive version range used by redirect entries:
// [Low, High]. A zero High is treated as "no upper bound" only when
// explicitly marked Unbounded, since Version{} is also a valid concrete
// version (0.0.0.0).
type Range struct {
	Low, High Version
	Unbounded bool
}

// Contains reports whether v falls within the closed range [Low, High],
// or is >= Low when Unbounded is set.
func (r Range) Contains(v Version) bool {
	if v.Compare(r.Low) < 0 {
		return false
	}
	if r.Unbounded {
		return true
	}
	return v.Compare(r.High) <= 0
}

// ParseRange parses the "low-high" textual form used by config-file
// binding redirects (e.g. "0.0.0.0-1.2.3.4").
func ParseRange(s string) (Range, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		low, err := Parse(s)
		if err != nil {
			return Range{}, err
		}
		return Range{Low: low, High: low}, nil
	}
	low, err := Parse(strings.TrimSpace(parts[0]))
	if err != nil {
		return Range{}, err
	}
	high, err := Parse(strings.TrimSpace(parts[1]))
	if err != nil {
		return Range{}, err
	}
	return Range{Low: low, High: high}, nil
}

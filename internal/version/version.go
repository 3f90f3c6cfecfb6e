// Package version models patch version identifiers: numeric game versions
// such as "14.1" and the symbolic PBE branch version.
package version

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/conn-castle/patchmirror/internal/messages"
)

// Branch names an update track.
type Branch string

const (
	// BranchLive is the stable branch with discrete numbered patches.
	BranchLive Branch = "live"
	// BranchPBE is the continuously updated preview branch.
	BranchPBE Branch = "pbe"
)

// ParseBranch validates a branch name.
func ParseBranch(raw string) (Branch, error) {
	switch Branch(strings.ToLower(strings.TrimSpace(raw))) {
	case BranchLive:
		return BranchLive, nil
	case BranchPBE:
		return BranchPBE, nil
	}
	return "", fmt.Errorf(messages.VersionInvalidBranchFmt, raw)
}

// pbeAliases are the accepted spellings of the PBE version.
var pbeAliases = map[string]struct{}{
	"pbe":  {},
	"main": {},
}

var numericPattern = regexp.MustCompile(`^[0-9]+\.[0-9]+(\.[0-9]+)?$`)

// Version is either a numeric version or the PBE version.
// The zero value is invalid; use Parse, MustParse or PBE.
type Version struct {
	num *semver.Version
	pbe bool
}

// PBE is the symbolic version of the preview branch.
var PBE = Version{pbe: true}

// Parse reads a version from its canonical string form.
func Parse(raw string) (Version, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := pbeAliases[trimmed]; ok {
		return PBE, nil
	}
	if !numericPattern.MatchString(trimmed) {
		return Version{}, fmt.Errorf(messages.VersionInvalidFmt, raw)
	}
	num, err := semver.NewVersion(trimmed)
	if err != nil {
		return Version{}, fmt.Errorf(messages.VersionInvalidFmt, raw)
	}
	return Version{num: num}, nil
}

// MustParse is Parse for constants and tests; it panics on invalid input.
func MustParse(raw string) Version {
	v, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// IsPBE reports whether v is the PBE version.
func (v Version) IsPBE() bool {
	return v.pbe
}

// IsZero reports whether v is the invalid zero value.
func (v Version) IsZero() bool {
	return !v.pbe && v.num == nil
}

// String returns the canonical form: "pbe", "X.Y" or "X.Y.Z".
func (v Version) String() string {
	switch {
	case v.pbe:
		return string(BranchPBE)
	case v.num == nil:
		return ""
	case v.num.Patch() == 0:
		return fmt.Sprintf("%d.%d", v.num.Major(), v.num.Minor())
	default:
		return fmt.Sprintf("%d.%d.%d", v.num.Major(), v.num.Minor(), v.num.Patch())
	}
}

// Compare returns -1, 0 or 1. Numeric versions compare component-wise;
// PBE sorts after every numeric version. The zero value sorts first.
func (v Version) Compare(o Version) int {
	switch {
	case v.IsZero() || o.IsZero():
		return boolCompare(!v.IsZero(), !o.IsZero())
	case v.pbe || o.pbe:
		return boolCompare(v.pbe, o.pbe)
	}
	return v.num.Compare(o.num)
}

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

// Equal reports whether v and o identify the same version.
func (v Version) Equal(o Version) bool {
	return v.Compare(o) == 0
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Sort orders versions ascending in place.
func Sort(versions []Version) {
	slices.SortFunc(versions, func(a, b Version) int { return a.Compare(b) })
}

func boolCompare(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	default:
		return -1
	}
}

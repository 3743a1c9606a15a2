// Package version extracts version strings from build artifacts, matches them
// by dotted prefix and orders release labels by semantic version.
package version

import (
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Artifact names carry versions like 4.5.0, 4.5.0-1, 4.5.0-rc2 or 4.5.0-gamma,
// so the version group is deliberately loose.
var (
	withDateRE     = regexp.MustCompile(`^[A-z]+-([-\d.a-z]+)-(\d{4}-\d{2}-\d{2})`)
	withPlatformRE = regexp.MustCompile(`^[A-z]+-([-\d.a-z]+)-(macosx|linux|win+)`)
	fullRE         = regexp.MustCompile(`^([-\d.a-z]+)-(\d{4}-\d{2}-\d{2})`)
)

// FromFilename extracts the version from an artifact filename such as
// "Slicer-4.11.0-2020-09-01-linux-amd64.tar.gz" or "Slicer-4.10.2-macosx-amd64.dmg".
// The dated form is tried first.
func FromFilename(name string) (string, bool) {
	for _, re := range []*regexp.Regexp{withDateRE, withPlatformRE} {
		if m := re.FindStringSubmatch(name); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// FromPackageVersion extracts the version from a "<version>-<YYYY-MM-DD>" string.
func FromPackageVersion(s string) (string, bool) {
	if m := fullRE.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	return "", false
}

// MatchPrefix reports whether have starts with the dot-separated components of want.
// Only as many components as want has are compared; extra trailing components in
// have are ignored. A have with fewer components than want does not match.
func MatchPrefix(have, want string) bool {
	if have == "" {
		return false
	}
	haveParts := strings.Split(have, ".")
	wantParts := strings.Split(want, ".")
	if len(haveParts) < len(wantParts) {
		return false
	}
	for i, part := range wantParts {
		if haveParts[i] != part {
			return false
		}
	}
	return true
}

// SortDescending returns versions newest first. Labels that are not semantic
// versions keep their relative order and follow the valid ones.
func SortDescending(versions []string) []string {
	type parsed struct {
		label string
		ver   *semver.Version
	}

	valid := make([]parsed, 0, len(versions))
	var invalid []string
	for _, v := range versions {
		sv, err := semver.NewVersion(v)
		if err != nil {
			invalid = append(invalid, v)
			continue
		}
		valid = append(valid, parsed{label: v, ver: sv})
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].ver.GreaterThan(valid[j].ver)
	})

	result := make([]string, 0, len(versions))
	for _, p := range valid {
		result = append(result, p.label)
	}
	return append(result, invalid...)
}

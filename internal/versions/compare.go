// Package versions compares runtime and platform versions and reports build information.
package versions

import "github.com/Masterminds/semver/v3"

// IsNewerVersion reports whether newVersion is strictly greater than oldVersion.
// Runtime versions are usually bare integers ("153"), which semver reads as "153.0.0".
// Strings that do not parse fall back to lexicographic comparison.
func IsNewerVersion(newVersion, oldVersion string) bool {
	newSemver, errNew := semver.NewVersion(newVersion)
	oldSemver, errOld := semver.NewVersion(oldVersion)

	if errNew != nil || errOld != nil {
		return newVersion > oldVersion
	}

	return newSemver.GreaterThan(oldSemver)
}

// MatchesConstraint reports whether version satisfies the semver constraint expression.
// An empty constraint or an unparseable version never matches. A malformed constraint is
// an error even when there is no version to check.
func MatchesConstraint(constraint, version string) (bool, error) {
	if constraint == "" {
		return false, nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, err
	}
	if version == "" {
		return false, nil
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false, nil
	}
	return c.Check(v), nil
}

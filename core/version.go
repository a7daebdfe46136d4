package core

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// LatestProtocolVersion is stamped into every block this node produces.
const LatestProtocolVersion = "0.13.1"

// ParseBlockVersion computes the block version, defaulting to "0.0.0" for empty strings
func ParseBlockVersion(protocolVersion string) (*semver.Version, error) {
	if protocolVersion == "" {
		return semver.NewVersion("0.0.0")
	}

	sep := "."
	digits := strings.Split(protocolVersion, sep)
	// pad with 3 zeros in case version has less than 3 digits
	digits = append(digits, []string{"0", "0", "0"}...)

	// get first 3 digits only
	return semver.NewVersion(strings.Join(digits[:3], sep))
}

// CheckProtocolVersion fails for versions this node cannot execute blocks of.
func CheckProtocolVersion(protocolVersion string) error {
	v, err := ParseBlockVersion(protocolVersion)
	if err != nil {
		return fmt.Errorf("parse protocol version %q: %w", protocolVersion, err)
	}
	latest := semver.MustParse(LatestProtocolVersion)
	if v.GreaterThan(latest) {
		return fmt.Errorf("protocol version %s is newer than supported %s", v, latest)
	}
	return nil
}

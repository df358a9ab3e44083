package credential

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// LocatorPrefix marks a session id that points at a remote credential backup.
const LocatorPrefix = "WAMUX-V1~"

var (
	// ErrInvalidLocator is returned for session ids that are not backup locators.
	ErrInvalidLocator = errors.New("invalid credential locator")

	fileIDPattern = regexp.MustCompile(`^[0-9A-Za-z_-]{1,128}$`)
)

// Locator addresses a sealed backup: the blob id plus the age identity that
// opens it.
type Locator struct {
	FileID string
	Key    string
}

// String formats the locator as WAMUX-V1~<fileID>#<key>.
func (l Locator) String() string {
	return LocatorPrefix + l.FileID + "#" + l.Key
}

// IsLocator reports whether s looks like a locator.
func IsLocator(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), LocatorPrefix)
}

// ParseLocator parses WAMUX-V1~<fileID>#<AGE-SECRET-KEY-...>.
func ParseLocator(s string) (Locator, error) {
	s = strings.TrimSpace(s)
	rest, ok := strings.CutPrefix(s, LocatorPrefix)
	if !ok {
		return Locator{}, fmt.Errorf("%w: missing %s prefix", ErrInvalidLocator, LocatorPrefix)
	}
	fileID, key, ok := strings.Cut(rest, "#")
	if !ok {
		return Locator{}, fmt.Errorf("%w: missing key", ErrInvalidLocator)
	}
	if !fileIDPattern.MatchString(fileID) {
		return Locator{}, fmt.Errorf("%w: bad file id %q", ErrInvalidLocator, fileID)
	}
	if !strings.HasPrefix(key, "AGE-SECRET-KEY-") {
		return Locator{}, fmt.Errorf("%w: bad key", ErrInvalidLocator)
	}
	return Locator{FileID: fileID, Key: key}, nil
}

package orabridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Version is a parsed Oracle release number such as 19.3.0.0.0.
type Version struct {
	Major      int
	Minor      int
	Update     int
	Patch      int
	VersionStr string
}

// String returns the version as a string.
func (v Version) String() string {
	if v.VersionStr != "" {
		return v.VersionStr
	}
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Update, v.Patch)
}

// AtLeast checks if the version is at least major.minor.update.
func (v Version) AtLeast(major, minor, update int) bool {
	if v.Major != major {
		return v.Major > major
	}
	if v.Minor != minor {
		return v.Minor > minor
	}
	return v.Update >= update
}

// SupportsBoolean reports whether SQL BOOLEAN binds are available (23ai).
func (v Version) SupportsBoolean() bool {
	return v.AtLeast(23, 0, 0)
}

// SupportsJSON reports whether the native JSON type is available.
func (v Version) SupportsJSON() bool {
	return v.AtLeast(21, 0, 0)
}

// ParseVersion extracts the release number from a version string. Banners
// such as "Oracle Database 19c Enterprise Edition Release 19.0.0.0.0" are
// accepted; the first dotted number is used.
func ParseVersion(s string) (Version, error) {
	v := Version{VersionStr: s}
	var token string
	for _, f := range strings.Fields(s) {
		if strings.Count(f, ".") >= 1 && f[0] >= '0' && f[0] <= '9' {
			token = f
			break
		}
	}
	if token == "" {
		return v, errors.Errorf("no release number in %q", s)
	}
	parts := strings.Split(token, ".")
	dst := []*int{&v.Major, &v.Minor, &v.Update, &v.Patch}
	for i := 0; i < len(parts) && i < len(dst); i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return v, errors.Wrapf(err, "bad release number %q", token)
		}
		*dst[i] = n
	}
	return v, nil
}

// Version returns the parsed server release.
func (c *Connection) Version(ctx context.Context) (Version, error) {
	s, err := c.ServerVersion(ctx)
	if err != nil {
		return Version{}, err
	}
	return ParseVersion(s)
}

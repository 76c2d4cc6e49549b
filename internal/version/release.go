package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/shigeo-nakamura/dex-router/pkg/errors"
)

// CheckRelease reports whether v is a tagged release build.
// Development builds ("main"), unparsable versions and pre-releases are rejected:
//   - v1.2.0       -> OK
//   - 1.2.0        -> OK (prefix is optional)
//   - v1.2.0-rc.1  -> ERROR (pre-release)
//   - main         -> ERROR (development build)
func CheckRelease(v string) error {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")

	if v == "" || v == "main" {
		return errors.New(errors.ErrCodeConfiguration, "development build")
	}

	parsed, err := semver.NewVersion(v)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeConfiguration, err, "invalid version '%s'", v)
	}

	if parsed.Prerelease() != "" {
		return errors.Newf(errors.ErrCodeConfiguration, "pre-release build %s", parsed.Original())
	}

	return nil
}

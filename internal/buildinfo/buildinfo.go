// Package buildinfo reports the version stamped into binaries with -ldflags.
package buildinfo

import (
	"fmt"

	"go.uber.org/zap"
)

const notAvailable = "N/A"

// Info describes a build.
type Info struct {
	Version string
	Date    string
	Commit  string
}

// New fills empty values with "N/A".
func New(version, date, commit string) Info {
	return Info{
		Version: orNA(version),
		Date:    orNA(date),
		Commit:  orNA(commit),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("version=%s date=%s commit=%s", i.Version, i.Date, i.Commit)
}

// Log writes the build info at info level.
func (i Info) Log(logger *zap.SugaredLogger) {
	logger.Infow("build info", "version", i.Version, "date", i.Date, "commit", i.Commit)
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}

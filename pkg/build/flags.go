// SPDX-License-Identifier: MIT
//
// Package build exposes metadata embedded into the binary at link time:
//
//	go build -ldflags "-X soundreactive/pkg/build.buildName=soundreactive \
//	  -X soundreactive/pkg/build.buildVersion=0.3.0 ..."
//
// Development builds carry the defaults below.
package build

import (
	"fmt"
	"runtime"
)

// Description is the one-line summary shown by the CLI.
const Description = "Real-time sound-reactive feature extraction"

// Info describes the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String formats the version line printed by --version.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s, %s)", i.Name, i.Version, i.Commit, i.Time, runtime.Version())
}

// Package-level variables for build information. These are populated by -ldflags
// during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = defaultInfo()
)

func defaultInfo() Info {
	return Info{
		Name:        "soundreactive",
		Description: Description,
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
}

// Initialize copies the ldflags values into the build information. A binary
// linked with none of them keeps the development defaults. One linked with
// only some of them was packaged wrongly and gets an error naming the first
// missing flag.
func Initialize() error {
	if buildName == "" && buildTime == "" && buildCommit == "" && buildVersion == "" {
		buildFlags = defaultInfo()
		return nil
	}
	if buildName == "" {
		return fmt.Errorf("BuildName is required")
	}
	if buildTime == "" {
		return fmt.Errorf("BuildTime is required")
	}
	if buildCommit == "" {
		return fmt.Errorf("BuildCommit is required")
	}
	if buildVersion == "" {
		return fmt.Errorf("BuildVersion is required")
	}

	buildFlags = Info{
		Name:        buildName,
		Description: Description,
		Time:        buildTime,
		Commit:      buildCommit,
		Version:     buildVersion,
	}
	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() Info {
	return buildFlags
}

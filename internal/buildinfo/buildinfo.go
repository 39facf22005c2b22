// Package buildinfo carries the version metadata injected at link time.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

// UnknownValue is reported for metadata that was not injected.
const UnknownValue = "unknown"

// Info is the build metadata of the running binary.
type Info struct {
	Version   string
	BuildDate string
	Commit    string
}

// New returns Info, filling the commit from the embedded VCS stamp when the
// linker did not set one.
func New(version, buildDate, commit string) *Info {
	if commit == "" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" && len(s.Value) >= 7 {
					commit = s.Value[:7]
				}
			}
		}
	}
	return &Info{Version: version, BuildDate: buildDate, Commit: commit}
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownValue
	}
	return s
}

// GetVersion returns the version or UnknownValue.
func (i *Info) GetVersion() string {
	if i == nil {
		return UnknownValue
	}
	return orUnknown(i.Version)
}

// GetBuildDate returns the build date or UnknownValue.
func (i *Info) GetBuildDate() string {
	if i == nil {
		return UnknownValue
	}
	return orUnknown(i.BuildDate)
}

// Release is the release name reported with telemetry events.
func (i *Info) Release() string {
	return "boxlabel@" + i.GetVersion()
}

// String is the text printed by --version.
func (i *Info) String() string {
	if i == nil || i.Commit == "" {
		return fmt.Sprintf("%s (built %s)", i.GetVersion(), i.GetBuildDate())
	}
	return fmt.Sprintf("%s (%s, built %s)", i.GetVersion(), i.Commit, i.GetBuildDate())
}

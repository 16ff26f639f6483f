package buildinfo

import (
	"fmt"
	"runtime/debug"
)

type Info struct {
	Package    string
	GoVersion  string
	Commit     string
	CommitTime string
	Modified   bool
}

func (i Info) String() string {
	mod := ""
	if i.Modified {
		mod = " (modified)"
	}
	if i.Commit == "" {
		return fmt.Sprintf("%s built with %s", i.Package, i.GoVersion)
	}
	return fmt.Sprintf("%s built with %s at commit %s (%s)%s", i.Package, i.GoVersion, i.Commit, i.CommitTime, mod)
}

// Get reads the build settings embedded by the Go toolchain
func Get() Info {
	out := Info{Package: "atlastransform"}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}

	out.GoVersion = bi.GoVersion
	if bi.Path != "" {
		out.Package = bi.Path
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Commit = s.Value
		case "vcs.time":
			out.CommitTime = s.Value
		case "vcs.modified":
			out.Modified = s.Value == "true"
		}
	}

	return out
}

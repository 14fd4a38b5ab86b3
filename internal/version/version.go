package version

import "runtime/debug"

// AppName is used for log attrs, metric labels, trace service names and the CLI user agent.
const AppName = "portfolio-web"

// set with -ldflags "-X github.com/aleaurre/portfolio-web/internal/version.Version=..."
var (
	Version    = "dev"
	Commit     = "none"
	CommitDate string
	BuildDate  string
	BuildId    string
	GoVersion  string
	VCSDirty   *bool
)

type Info struct {
	AppName    string `json:"app"`
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	CommitDate string `json:"commit_date"`
	BuildDate  string `json:"build_date"`
	BuildId    string `json:"build_id"`
	GoVersion  string `json:"go_version"`
	VCSDirty   *bool  `json:"vcs_dirty,omitempty"`
}

// IsRelease reports whether the binary was stamped with a version at build time.
func (i Info) IsRelease() bool {
	return i.Version != "" && i.Version != "dev"
}

// String renders the one-line form printed by -V and `portfolioctl version`.
func (i Info) String() string {
	dirty := "unknown"
	if i.VCSDirty != nil {
		if *i.VCSDirty {
			dirty = "true"
		} else {
			dirty = "false"
		}
	}
	return i.AppName + " " + i.Version +
		" (commit=" + i.Commit +
		", commit_date=" + i.CommitDate +
		", build_id=" + i.BuildId +
		", build_date=" + i.BuildDate +
		", go=" + i.GoVersion +
		", dirty=" + dirty + ")"
}

func Get() Info {
	out := Info{
		AppName:    AppName,
		Version:    Version,
		Commit:     Commit,
		CommitDate: CommitDate,
		BuildDate:  BuildDate,
		BuildId:    BuildId,
		GoVersion:  GoVersion,
		VCSDirty:   VCSDirty,
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}
	out.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if out.Commit == "none" && s.Value != "" {
				out.Commit = s.Value
			}
		case "vcs.time":
			if out.BuildDate == "" && s.Value != "" {
				out.BuildDate = s.Value
			}
			if out.CommitDate == "" {
				out.CommitDate = s.Value
			}
		case "vcs.modified":
			// ldflags win over the toolchain's view of the tree
			if out.VCSDirty != nil {
				continue
			}
			b := s.Value == "true"
			if s.Value == "true" || s.Value == "false" {
				out.VCSDirty = &b
			}
		}
	}
	return out
}

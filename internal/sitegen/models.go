package sitegen

import "github.com/clean-dependency-project/dlserver/internal/query"

// PageModel is the data the download page is rendered from.
type PageModel struct {
	Platforms        []PlatformModel
	DownloadStatsURL string
}

// PlatformModel holds the builds offered for one operating system.
type PlatformModel struct {
	ID          string // "macosx", "win", "linux"
	DisplayName string
	Release     *BuildModel
	Nightly     *BuildModel
}

// BuildModel is one downloadable build.
type BuildModel struct {
	Version     string
	Revision    int
	Arch        string
	BuildDate   string
	Size        int64
	MD5         string
	DownloadURL string
}

// HasBuilds reports whether any build is offered for the platform.
func (p PlatformModel) HasBuilds() bool {
	return p.Release != nil || p.Nightly != nil
}

func buildFrom(r *query.ResolvedRecord, hostURL string) *BuildModel {
	if r == nil {
		return nil
	}
	b := &BuildModel{
		Revision:    r.Revision,
		Arch:        r.Arch,
		BuildDate:   r.BuildDateYMD,
		Size:        r.Size,
		DownloadURL: hostURL + r.DownloadURL,
	}
	if r.Version != nil {
		b.Version = *r.Version
	}
	if r.MD5 != nil {
		b.MD5 = *r.MD5
	}
	return b
}

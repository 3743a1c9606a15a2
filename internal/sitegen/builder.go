package sitegen

import (
	"strings"

	"github.com/clean-dependency-project/dlserver/internal/platform"
	"github.com/clean-dependency-project/dlserver/internal/query"
)

// BuildPageModel turns resolved results into the page model. Platforms keep their
// canonical order. hostURL prefixes download links and the statistics link;
// an empty hostURL leaves links relative.
func BuildPageModel(results query.AllResults, hostURL string) *PageModel {
	hostURL = strings.TrimSuffix(hostURL, "/")

	model := &PageModel{
		Platforms:        make([]PlatformModel, 0, len(platform.Supported())),
		DownloadStatsURL: hostURL + "/download-stats",
	}
	for _, p := range platform.Supported() {
		byStability := results[p.ID]
		model.Platforms = append(model.Platforms, PlatformModel{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Release:     buildFrom(byStability[query.StabilityRelease], hostURL),
			Nightly:     buildFrom(byStability[query.StabilityNightly], hostURL),
		})
	}
	return model
}

// Package sitegen renders the download page and its JSON companion from the
// records resolved for every platform.
// Following Dave Cheney's principle: "Accept interfaces, return structs"
package sitegen

import (
	"context"
	"net/url"

	"github.com/clean-dependency-project/dlserver/internal/query"
)

// Resolver abstracts resolution of the release and nightly record of every platform.
// This interface enables testability by allowing mock implementations.
type Resolver interface {
	// ResolveAll resolves every platform and stability for the mode and offset in params.
	ResolveAll(ctx context.Context, params url.Values) (query.AllResults, error)
}

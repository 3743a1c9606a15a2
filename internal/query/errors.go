package query

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/clean-dependency-project/dlserver/internal/catalog"
)

// Error taxonomy for resolution requests.
var (
	ErrInvalidCriteria   = errors.New("invalid criteria")
	ErrAmbiguousCriteria = errors.New("ambiguous criteria")
	ErrUnsupportedMode   = errors.New("unsupported mode")
	ErrNotFound          = errors.New("no matching revision for given parameters")
)

// CriteriaError describes a rejected request parameter. It matches its Kind
// with errors.Is.
type CriteriaError struct {
	Field  string
	Value  string
	Reason string
	Kind   error
}

func (e CriteriaError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s %q: %s", e.Field, e.Value, e.Reason)
}

func (e CriteriaError) Is(target error) bool {
	return target == e.Kind
}

// StatusCode maps a resolution error to the HTTP status the front end reports.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidCriteria),
		errors.Is(err, ErrAmbiguousCriteria),
		errors.Is(err, ErrUnsupportedMode):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

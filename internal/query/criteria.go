// Package query resolves selection criteria against a catalog snapshot and
// projects the matching build into its public form.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/clean-dependency-project/dlserver/internal/catalog"
	"github.com/clean-dependency-project/dlserver/internal/platform"
)

// Mode selects how the mode value is compared against records.
type Mode int

const (
	ModeRevision Mode = iota + 1
	ModeClosestRevision
	ModeVersion
	ModeCheckoutDate
	ModeDate
)

// Modes lists every mode in request parameter order.
var Modes = []Mode{ModeRevision, ModeClosestRevision, ModeVersion, ModeCheckoutDate, ModeDate}

// LatestDate is the default date value; it selects the newest record.
const LatestDate = "9999-12-31"

func (m Mode) String() string {
	switch m {
	case ModeRevision:
		return "revision"
	case ModeClosestRevision:
		return "closest-revision"
	case ModeVersion:
		return "version"
	case ModeCheckoutDate:
		return "checkout-date"
	case ModeDate:
		return "date"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses a request parameter name into a Mode.
func ParseMode(name string) (Mode, error) {
	for _, m := range Modes {
		if m.String() == name {
			return m, nil
		}
	}
	return 0, CriteriaError{Field: "mode", Value: name, Reason: "should be one of " + modeNames(Modes), Kind: ErrInvalidCriteria}
}

// Stability filters records by release status.
type Stability string

const (
	StabilityRelease Stability = "release"
	StabilityNightly Stability = "nightly"
	StabilityAny     Stability = "any"
)

// ParseStability validates a stability parameter.
func ParseStability(s string) (Stability, error) {
	switch Stability(s) {
	case StabilityRelease, StabilityNightly, StabilityAny:
		return Stability(s), nil
	default:
		return "", CriteriaError{Field: "stability", Value: s, Reason: "should be one of release, nightly, any", Kind: ErrInvalidCriteria}
	}
}

// Criteria is a validated, unambiguous selection.
type Criteria struct {
	Platform  string
	Stability Stability
	Mode      Mode
	Value     string
	Offset    int
}

// Capabilities reports which modes the active catalog source supports.
type Capabilities interface {
	SupportsMode(Mode) bool
}

type sourceCapabilities struct {
	source catalog.Source
}

func (s sourceCapabilities) SupportsMode(m Mode) bool {
	if m == ModeCheckoutDate {
		return s.source.HasCheckoutDate()
	}
	return m >= ModeRevision && m <= ModeDate
}

// CapabilitiesOf returns the mode capabilities of a catalog source.
func CapabilitiesOf(source catalog.Source) Capabilities {
	return sourceCapabilities{source: source}
}

// SupportedModes lists the modes caps supports, in parameter order.
func SupportedModes(caps Capabilities) []Mode {
	var modes []Mode
	for _, m := range Modes {
		if caps.SupportsMode(m) {
			modes = append(modes, m)
		}
	}
	return modes
}

// Parse validates request parameters into Criteria.
// Conflicting mode keys are reported before any other parameter is checked.
func Parse(params url.Values, caps Capabilities) (Criteria, error) {
	if _, _, err := selectMode(params); err != nil {
		return Criteria{}, err
	}

	os := params.Get("os")
	if !platform.IsSupported(os) {
		return Criteria{}, CriteriaError{
			Field:  "os",
			Value:  os,
			Reason: "unknown os: should be one of " + strings.Join(platform.IDs(), ", "),
			Kind:   ErrInvalidCriteria,
		}
	}

	c, err := ParseAll(params, caps)
	if err != nil {
		return Criteria{}, err
	}
	c.Platform = os

	stability := StabilityRelease
	if c.Mode == ModeRevision {
		stability = StabilityAny
	}
	if params.Has("stability") {
		if stability, err = ParseStability(params.Get("stability")); err != nil {
			return Criteria{}, err
		}
	}
	c.Stability = stability

	return c, nil
}

// ParseAll validates the platform-independent parameters (mode and offset)
// used when resolving every platform and stability at once. The returned
// Criteria has no Platform or Stability set.
func ParseAll(params url.Values, caps Capabilities) (Criteria, error) {
	mode, value, err := selectMode(params)
	if err != nil {
		return Criteria{}, err
	}
	if !caps.SupportsMode(mode) {
		return Criteria{}, CriteriaError{
			Field:  "mode",
			Value:  mode.String(),
			Reason: "should be one of " + modeNames(SupportedModes(caps)),
			Kind:   ErrUnsupportedMode,
		}
	}

	if mode == ModeRevision || mode == ModeClosestRevision {
		if _, err := strconv.Atoi(value); err != nil {
			return Criteria{}, CriteriaError{Field: mode.String(), Value: value, Reason: "must be an integer", Kind: ErrInvalidCriteria}
		}
	}

	offset := 0
	if params.Has("offset") {
		raw := params.Get("offset")
		if offset, err = strconv.Atoi(raw); err != nil {
			return Criteria{}, CriteriaError{Field: "offset", Value: raw, Reason: "must be an integer", Kind: ErrInvalidCriteria}
		}
	}

	return Criteria{Mode: mode, Value: value, Offset: offset}, nil
}

func selectMode(params url.Values) (Mode, string, error) {
	var (
		found []Mode
		value string
	)
	for _, m := range Modes {
		if params.Has(m.String()) {
			found = append(found, m)
			value = params.Get(m.String())
		}
	}

	switch len(found) {
	case 0:
		return ModeDate, LatestDate, nil
	case 1:
		return found[0], value, nil
	default:
		return 0, "", CriteriaError{
			Field:  "mode",
			Value:  modeNames(found),
			Reason: "only one of " + modeNames(Modes) + " may be given",
			Kind:   ErrAmbiguousCriteria,
		}
	}
}

func modeNames(modes []Mode) string {
	names := make([]string, 0, len(modes))
	for _, m := range modes {
		names = append(names, m.String())
	}
	return strings.Join(names, ", ")
}

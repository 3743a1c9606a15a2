package query

import (
	"fmt"
	"strconv"

	"github.com/clean-dependency-project/dlserver/internal/catalog"
	"github.com/clean-dependency-project/dlserver/internal/version"
)

// Predicate tests a single build record.
type Predicate func(catalog.Record) bool

// All returns a predicate that passes when every p passes. Evaluation stops at
// the first failure.
func All(preds ...Predicate) Predicate {
	return func(r catalog.Record) bool {
		for _, p := range preds {
			if !p(r) {
				return false
			}
		}
		return true
	}
}

// MatchPlatform matches records built for id.
func MatchPlatform(id string) Predicate {
	return func(r catalog.Record) bool {
		return r.Platform == id
	}
}

// MatchStability matches records by release status.
func MatchStability(s Stability) Predicate {
	switch s {
	case StabilityNightly:
		return func(r catalog.Record) bool {
			return r.Stability == string(StabilityNightly) || r.SubmissionType == string(StabilityNightly)
		}
	case StabilityRelease:
		return func(r catalog.Record) bool {
			return r.IsRelease()
		}
	default:
		return func(catalog.Record) bool { return true }
	}
}

// MatchMode compiles the mode predicate for value.
func MatchMode(mode Mode, value string) (Predicate, error) {
	switch mode {
	case ModeRevision:
		rev, err := strconv.Atoi(value)
		if err != nil {
			return nil, CriteriaError{Field: mode.String(), Value: value, Reason: "must be an integer", Kind: ErrInvalidCriteria}
		}
		return func(r catalog.Record) bool {
			return r.Revision == rev
		}, nil

	case ModeClosestRevision:
		rev, err := strconv.Atoi(value)
		if err != nil {
			return nil, CriteriaError{Field: mode.String(), Value: value, Reason: "must be an integer", Kind: ErrInvalidCriteria}
		}
		// newest record not above rev once scanned in catalog order
		return func(r catalog.Record) bool {
			return rev >= r.Revision
		}, nil

	case ModeVersion:
		return func(r catalog.Record) bool {
			have, ok := DeriveVersion(r)
			return ok && version.MatchPrefix(have, value)
		}, nil

	case ModeDate:
		return matchDate(value, func(r catalog.Record) string { return r.BuildDate }), nil

	case ModeCheckoutDate:
		return matchDate(value, func(r catalog.Record) string { return r.CheckoutDate }), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMode, mode)
	}
}

// matchDate compares ISO 8601 date-only strings, whose lexical order is
// calendar order.
func matchDate(day string, field func(catalog.Record) string) Predicate {
	return func(r catalog.Record) bool {
		d := field(r)
		if d == "" {
			return false
		}
		return day >= catalog.DateOnly(d)
	}
}

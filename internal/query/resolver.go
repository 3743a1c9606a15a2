package query

import (
	"slices"

	"github.com/clean-dependency-project/dlserver/internal/catalog"
)

// Resolve returns the record selected by c from cat.
//
// The base match is the first record, in catalog order, for c.Platform that
// satisfies the stability and mode predicates. A non-zero offset then moves
// between revision groups rather than individual records: a negative offset
// steps to older revisions, a positive one to newer revisions, and the most
// recently built record of the landed revision is returned.
func Resolve(cat *catalog.Catalog, c Criteria) (catalog.Record, error) {
	if cat == nil {
		return catalog.Record{}, ErrNotFound
	}

	modePred, err := MatchMode(c.Mode, c.Value)
	if err != nil {
		return catalog.Record{}, err
	}
	match := All(MatchStability(c.Stability), modePred)

	onPlatform := MatchPlatform(c.Platform)
	var filtered []catalog.Record
	for _, r := range cat.Records {
		if onPlatform(r) {
			filtered = append(filtered, r)
		}
	}

	base := slices.IndexFunc(filtered, match)
	if base < 0 {
		return catalog.Record{}, ErrNotFound
	}

	switch {
	case c.Offset < 0:
		// older: walk forward through the descending list
		runs := revisionRuns(filtered[base:])
		// compared before negating so the most negative int cannot overflow
		if c.Offset <= -len(runs) {
			return catalog.Record{}, ErrNotFound
		}
		return runs[-c.Offset][0], nil

	case c.Offset > 0:
		// newer: flip the candidates up to the base match so they ascend in time
		candidates := slices.Clone(filtered[:base+1])
		slices.Reverse(candidates)
		runs := revisionRuns(candidates)
		if c.Offset >= len(runs) {
			return catalog.Record{}, ErrNotFound
		}
		run := runs[c.Offset]
		return run[len(run)-1], nil

	default:
		return filtered[base], nil
	}
}

// revisionRuns splits records into maximal consecutive groups sharing a revision.
func revisionRuns(records []catalog.Record) [][]catalog.Record {
	var runs [][]catalog.Record
	start := 0
	for i := 1; i <= len(records); i++ {
		if i == len(records) || records[i].Revision != records[start].Revision {
			runs = append(runs, records[start:i])
			start = i
		}
	}
	return runs
}

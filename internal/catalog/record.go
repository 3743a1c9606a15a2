// Package catalog holds the in-memory catalog of published builds and the
// per-source rules for turning raw upstream records into build records.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is a single published build. Records are immutable once parsed.
type Record struct {
	ID     string // upstream-assigned record id
	Source Source

	Platform       string
	Arch           string
	Revision       int
	Stability      string // release label, empty for untagged builds
	SubmissionType string

	BuildDate    string // "YYYY-MM-DD HH:MM:SS"
	CheckoutDate string // empty when the source does not track it

	ProductName    string
	Codebase       string
	Package        string
	Filename       string
	PackageVersion string // "<version>-<YYYY-MM-DD>" for sources that publish it

	Size       int64
	Checksum   string
	ArtifactID string

	Raw json.RawMessage
}

// IsRelease reports whether the record carries a release label.
func (r Record) IsRelease() bool {
	return r.Stability != ""
}

// DateOnly returns the portion of a date string before the first space.
func DateOnly(s string) string {
	day, _, _ := strings.Cut(s, " ")
	return day
}

// Catalog is an immutable snapshot of every known build, ordered by
// descending revision then descending build date.
type Catalog struct {
	Records  []Record
	Count    int64
	LoadedAt time.Time
}

// Len returns the number of records in the snapshot.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Records)
}

// flexInt decodes integers that upstream APIs send either as JSON numbers or
// as numeric strings.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	s := string(data)
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %s", data)
	}
	*f = flexInt(n)
	return nil
}

// flexString decodes identifiers sent either as JSON strings or numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid identifier %s", data)
	}
	*f = flexString(n.String())
	return nil
}

package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/clean-dependency-project/dlserver/internal/storage"
)

// Sentinel errors for raw record handling.
var (
	ErrUnknownSource   = errors.New("unknown server API")
	ErrMalformedRecord = errors.New("malformed build record")
)

// Source identifies the upstream package API a catalog was built from.
type Source int

const (
	SourceMidas Source = iota + 1
	SourceGirder
)

// DefaultSource is used when no server API is configured.
const DefaultSource = SourceMidas

// ParseSource parses a server API name. Both the canonical names
// (Midas_v1, Girder_v1) and their lowercase short forms are accepted.
func ParseSource(name string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "midas_v1", "midas":
		return SourceMidas, nil
	case "girder_v1", "girder":
		return SourceGirder, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
}

func (s Source) String() string {
	switch s {
	case SourceMidas:
		return "Midas_v1"
	case SourceGirder:
		return "Girder_v1"
	default:
		return fmt.Sprintf("Source(%d)", int(s))
	}
}

// Slug is the short lowercase name used in database file names.
func (s Source) Slug() string {
	switch s {
	case SourceMidas:
		return "midas"
	case SourceGirder:
		return "girder"
	default:
		return "unknown"
	}
}

// HasCheckoutDate reports whether records from this source carry a checkout date.
func (s Source) HasCheckoutDate() bool {
	return s == SourceMidas
}

// HasChecksum reports whether records from this source carry an md5 checksum.
func (s Source) HasChecksum() bool {
	return s == SourceMidas
}

// HasCodebase reports whether records from this source carry codebase and package names.
func (s Source) HasCodebase() bool {
	return s == SourceMidas
}

// DefaultDownloadURL is the upstream URL template for artifact downloads;
// "{id}" is replaced by the artifact identifier.
func (s Source) DefaultDownloadURL() string {
	switch s {
	case SourceGirder:
		return "https://slicer-packages.kitware.com/api/v1/item/{id}/download"
	default:
		return "https://slicer.kitware.com/midas3/download?bitstream={id}"
	}
}

// ParseRecord decodes one raw upstream payload into a Record.
func (s Source) ParseRecord(raw []byte) (Record, error) {
	switch s {
	case SourceMidas:
		return parseMidas(raw)
	case SourceGirder:
		return parseGirder(raw)
	default:
		return Record{}, fmt.Errorf("%w: %d", ErrUnknownSource, int(s))
	}
}

// RowFromRaw builds the storage row for a raw upstream payload. Payloads
// ParseRecord rejects are rejected here too, so every stored row can be
// loaded back into the catalog.
func (s Source) RowFromRaw(raw []byte) (storage.BuildRow, error) {
	if _, err := s.ParseRecord(raw); err != nil {
		return storage.BuildRow{}, err
	}

	switch s {
	case SourceMidas:
		var m struct {
			ItemID       flexString `json:"item_id"`
			Revision     flexString `json:"revision"`
			CheckoutDate string     `json:"checkoutdate"`
			DateCreation string     `json:"date_creation"`
		}
		if err := json.Unmarshal(raw, &m); err != nil {
			return storage.BuildRow{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		// item ids and revisions must be integers; anything else is skipped upstream data
		if _, err := strconv.ParseInt(string(m.ItemID), 10, 64); err != nil {
			return storage.BuildRow{}, fmt.Errorf("%w: item_id %q is not an integer", ErrMalformedRecord, m.ItemID)
		}
		rev, err := strconv.ParseInt(string(m.Revision), 10, 64)
		if err != nil {
			return storage.BuildRow{}, fmt.Errorf("%w: revision %q is not an integer", ErrMalformedRecord, m.Revision)
		}
		return storage.BuildRow{
			ItemID:       string(m.ItemID),
			Revision:     rev,
			CheckoutDate: m.CheckoutDate,
			BuildDate:    m.DateCreation,
			Record:       string(raw),
		}, nil
	case SourceGirder:
		var g girderRecord
		if err := json.Unmarshal(raw, &g); err != nil {
			return storage.BuildRow{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		if g.ID == "" {
			return storage.BuildRow{}, fmt.Errorf("%w: missing _id", ErrMalformedRecord)
		}
		return storage.BuildRow{
			ItemID:       g.ID,
			Revision:     int64(g.Meta.Revision),
			CheckoutDate: g.Created,
			BuildDate:    g.Meta.BuildDate,
			Record:       string(raw),
		}, nil
	default:
		return storage.BuildRow{}, fmt.Errorf("%w: %d", ErrUnknownSource, int(s))
	}
}

type midasRecord struct {
	ItemID         flexString `json:"item_id"`
	OS             string     `json:"os"`
	Arch           string     `json:"arch"`
	Revision       flexInt    `json:"revision"`
	DateCreation   string     `json:"date_creation"`
	CheckoutDate   string     `json:"checkoutdate"`
	Release        string     `json:"release"`
	SubmissionType string     `json:"submissiontype"`
	Codebase       string     `json:"codebase"`
	Name           string     `json:"name"`
	Package        string     `json:"package"`
	ProductName    string     `json:"productname"`
	Bitstreams     []struct {
		BitstreamID flexString `json:"bitstream_id"`
		Size        flexInt    `json:"size"`
		MD5         string     `json:"md5"`
	} `json:"bitstreams"`
}

func parseMidas(raw []byte) (Record, error) {
	var m midasRecord
	if err := json.Unmarshal(raw, &m); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if len(m.Bitstreams) == 0 {
		return Record{}, fmt.Errorf("%w: item %s has no bitstreams", ErrMalformedRecord, m.ItemID)
	}
	bitstream := m.Bitstreams[0]

	return Record{
		ID:             string(m.ItemID),
		Source:         SourceMidas,
		Platform:       m.OS,
		Arch:           m.Arch,
		Revision:       int(m.Revision),
		Stability:      m.Release,
		SubmissionType: m.SubmissionType,
		BuildDate:      m.DateCreation,
		CheckoutDate:   m.CheckoutDate,
		ProductName:    m.ProductName,
		Codebase:       m.Codebase,
		Package:        m.Package,
		Filename:       m.Name,
		Size:           int64(bitstream.Size),
		Checksum:       bitstream.MD5,
		ArtifactID:     string(bitstream.BitstreamID),
		Raw:            json.RawMessage(raw),
	}, nil
}

type girderRecord struct {
	ID      string  `json:"_id"`
	Name    string  `json:"name"`
	Size    flexInt `json:"size"`
	Created string  `json:"created"`
	Meta    struct {
		OS        string  `json:"os"`
		Arch      string  `json:"arch"`
		Revision  flexInt `json:"revision"`
		BuildDate string  `json:"build_date"`
		Release   string  `json:"release"`
		BaseName  string  `json:"baseName"`
		Version   string  `json:"version"`
	} `json:"meta"`
}

func parseGirder(raw []byte) (Record, error) {
	var g girderRecord
	if err := json.Unmarshal(raw, &g); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	submission := "nightly"
	if g.Meta.Release != "" {
		submission = "release"
	}

	return Record{
		ID:             g.ID,
		Source:         SourceGirder,
		Platform:       g.Meta.OS,
		Arch:           g.Meta.Arch,
		Revision:       int(g.Meta.Revision),
		Stability:      g.Meta.Release,
		SubmissionType: submission,
		BuildDate:      normalizeTimestamp(g.Meta.BuildDate),
		ProductName:    g.Meta.BaseName,
		Filename:       g.Name,
		PackageVersion: g.Meta.Version,
		Size:           int64(g.Size),
		ArtifactID:     g.ID,
		Raw:            json.RawMessage(raw),
	}, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// normalizeTimestamp rewrites ISO 8601 timestamps as "YYYY-MM-DD HH:MM:SS" so
// the date is always the part before the first space. Unparseable values are
// returned unchanged.
func normalizeTimestamp(s string) string {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(time.DateTime)
		}
	}
	return s
}

package query

import (
	"strings"

	"github.com/clean-dependency-project/dlserver/internal/catalog"
	"github.com/clean-dependency-project/dlserver/internal/version"
)

// DefaultBitstreamPath prefixes the local download locator of every record.
const DefaultBitstreamPath = "/bitstream"

// ResolvedRecord is the public view of a matched build. Fields the active
// catalog source does not provide are nil and encode as JSON null.
type ResolvedRecord struct {
	Arch            string  `json:"arch"`
	Revision        int     `json:"revision"`
	OS              string  `json:"os"`
	Codebase        *string `json:"codebase"`
	Name            string  `json:"name"`
	Package         *string `json:"package"`
	BuildDate       string  `json:"build_date"`
	BuildDateYMD    string  `json:"build_date_ymd"`
	CheckoutDate    *string `json:"checkout_date"`
	CheckoutDateYMD *string `json:"checkout_date_ymd"`
	ProductName     string  `json:"product_name"`
	Stability       string  `json:"stability"`
	Size            int64   `json:"size"`
	MD5             *string `json:"md5"`
	Version         *string `json:"version"`
	DownloadURL     string  `json:"download_url"`
}

// Projector turns matched records into ResolvedRecords for one catalog source.
type Projector struct {
	source        catalog.Source
	bitstreamPath string
}

// NewProjector creates a projector. An empty bitstreamPath uses DefaultBitstreamPath.
func NewProjector(source catalog.Source, bitstreamPath string) Projector {
	if bitstreamPath == "" {
		bitstreamPath = DefaultBitstreamPath
	}
	return Projector{
		source:        source,
		bitstreamPath: strings.TrimSuffix(bitstreamPath, "/"),
	}
}

// Project returns the public view of r, or nil when r is nil.
func (p Projector) Project(r *catalog.Record) *ResolvedRecord {
	if r == nil {
		return nil
	}

	out := &ResolvedRecord{
		Arch:         r.Arch,
		Revision:     r.Revision,
		OS:           r.Platform,
		Name:         r.Filename,
		BuildDate:    r.BuildDate,
		BuildDateYMD: catalog.DateOnly(r.BuildDate),
		ProductName:  r.ProductName,
		Stability:    string(StabilityNightly),
		Size:         r.Size,
		DownloadURL:  p.DownloadURL(r.ArtifactID),
	}
	if r.IsRelease() {
		out.Stability = string(StabilityRelease)
	}
	if v, ok := DeriveVersion(*r); ok {
		out.Version = &v
	}

	if p.source.HasCodebase() {
		out.Codebase = ptr(r.Codebase)
		out.Package = ptr(r.Package)
	}
	if p.source.HasCheckoutDate() {
		out.CheckoutDate = ptr(r.CheckoutDate)
		out.CheckoutDateYMD = ptr(catalog.DateOnly(r.CheckoutDate))
	}
	if p.source.HasChecksum() {
		out.MD5 = ptr(r.Checksum)
	}
	return out
}

// DownloadURL returns the local download locator for an artifact.
func (p Projector) DownloadURL(artifactID string) string {
	return p.bitstreamPath + "/" + artifactID
}

// DeriveVersion returns the version of a record: its release label when it
// has one, otherwise the version embedded in its artifact name or package
// version.
func DeriveVersion(r catalog.Record) (string, bool) {
	if r.IsRelease() {
		return r.Stability, true
	}
	switch r.Source {
	case catalog.SourceGirder:
		return version.FromPackageVersion(r.PackageVersion)
	default:
		return version.FromFilename(r.Filename)
	}
}

func ptr[T any](v T) *T {
	return &v
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/clean-dependency-project/dlserver/internal/platform"
	"github.com/clean-dependency-project/dlserver/internal/query"
)

// titleCase upper-cases the first letter of each word. A Caser keeps state,
// so one is made per call.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

// fieldLabel turns a JSON field name such as build_date into "Build Date".
func fieldLabel(key string) string {
	return titleCase(strings.ReplaceAll(key, "_", " "))
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

// printRecord writes rec as aligned "Label: value" lines.
func printRecord(w io.Writer, rec *query.ResolvedRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fields := []struct {
		key   string
		value string
	}{
		{"name", rec.Name},
		{"os", rec.OS},
		{"arch", rec.Arch},
		{"revision", fmt.Sprint(rec.Revision)},
		{"version", orDash(rec.Version)},
		{"stability", titleCase(rec.Stability)},
		{"build_date", rec.BuildDate},
		{"checkout_date", orDash(rec.CheckoutDate)},
		{"size", fmt.Sprint(rec.Size)},
		{"md5", orDash(rec.MD5)},
		{"download_url", rec.DownloadURL},
	}
	for _, f := range fields {
		fmt.Fprintf(tw, "%s:\t%s\n", fieldLabel(f.key), f.value)
	}
	return tw.Flush()
}

// printAll writes one table row per platform and stability.
func printAll(w io.Writer, results query.AllResults) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PLATFORM\tSTABILITY\tREVISION\tVERSION\tBUILD DATE\tDOWNLOAD")
	for _, p := range platform.Supported() {
		for _, st := range []query.Stability{query.StabilityRelease, query.StabilityNightly} {
			rec := results[p.ID][st]
			if rec == nil {
				fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t-\n", p.DisplayName, titleCase(string(st)))
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
				p.DisplayName, titleCase(string(st)), rec.Revision, orDash(rec.Version), rec.BuildDateYMD, rec.DownloadURL)
		}
	}
	return tw.Flush()
}

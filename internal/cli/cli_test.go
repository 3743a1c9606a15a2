package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/clean-dependency-project/dlserver/internal/catalog"
	"github.com/clean-dependency-project/dlserver/internal/query"
	"github.com/clean-dependency-project/dlserver/internal/storage"
	"github.com/clean-dependency-project/dlserver/internal/upstream"
)

var midasFixtures = []string{
	`{"item_id": "201", "revision": "30000", "os": "linux", "arch": "amd64", "submissiontype": "nightly", "productname": "Slicer", "checkoutdate": "2021-05-01 22:00:00", "date_creation": "2021-05-02 04:00:00", "name": "Slicer-4.13.0-2021-05-02-linux-amd64.tar.gz", "bitstreams": [{"bitstream_id": "9201", "size": "100", "md5": "aa"}]}`,
	`{"item_id": "202", "revision": "29402", "os": "linux", "arch": "amd64", "release": "4.11.20210226", "submissiontype": "release", "productname": "Slicer", "checkoutdate": "2021-02-26 22:00:00", "date_creation": "2021-03-01 04:00:00", "name": "Slicer-4.11.20210226-linux-amd64.tar.gz", "bitstreams": [{"bitstream_id": "9202", "size": "200", "md5": "bb"}]}`,
	`{"item_id": "203", "revision": "29402", "os": "win", "arch": "amd64", "release": "4.11.20210226", "submissiontype": "release", "productname": "Slicer", "checkoutdate": "2021-02-26 22:00:00", "date_creation": "2021-03-01 05:00:00", "name": "Slicer-4.11.20210226-win-amd64.exe", "bitstreams": [{"bitstream_id": "9203", "size": "300", "md5": "cc"}]}`,
	`{"item_id": "204", "revision": "28257", "os": "linux", "arch": "amd64", "release": "4.10.2", "submissiontype": "release", "productname": "Slicer", "checkoutdate": "2019-05-16 22:00:00", "date_creation": "2019-05-17 04:00:00", "name": "Slicer-4.10.2-linux-amd64.tar.gz", "bitstreams": [{"bitstream_id": "9204", "size": "400", "md5": "dd"}]}`,
}

// seedDB writes the Midas fixtures into a fresh database file and returns its path.
func seedDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.sqlite")
	db, err := storage.InitDB(storage.Config{DatabasePath: path, LogLevel: "silent"})
	if err != nil {
		t.Fatalf("InitDB() error: %v", err)
	}
	defer func() { _ = db.Close() }()

	rows := make([]storage.BuildRow, 0, len(midasFixtures))
	for _, raw := range midasFixtures {
		row, err := catalog.SourceMidas.RowFromRaw([]byte(raw))
		if err != nil {
			t.Fatalf("RowFromRaw() error: %v", err)
		}
		rows = append(rows, row)
	}
	if _, err := db.InsertBuilds(context.Background(), rows); err != nil {
		t.Fatalf("InsertBuilds() error: %v", err)
	}
	return path
}

// runApp runs the application with args and returns what it wrote to stdout.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := NewApp()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = io.Discard

	argv := append([]string{"dlserver", "--config", filepath.Join(t.TempDir(), "missing.yaml")}, args...)
	err := app.RunContext(context.Background(), argv)
	return out.String(), err
}

func TestFind(t *testing.T) {
	dbPath := seedDB(t)

	tests := []struct {
		name         string
		args         []string
		wantRevision int
		wantDownload string
		wantVersion  string
	}{
		{
			name:         "latest release by default",
			args:         []string{"--os", "linux"},
			wantRevision: 29402,
			wantDownload: "/bitstream/9202",
			wantVersion:  "4.11.20210226",
		},
		{
			name:         "latest nightly",
			args:         []string{"--os", "linux", "--stability", "nightly"},
			wantRevision: 30000,
			wantDownload: "/bitstream/9201",
			wantVersion:  "4.13.0",
		},
		{
			name:         "exact revision",
			args:         []string{"--os", "linux", "--revision", "28257"},
			wantRevision: 28257,
			wantDownload: "/bitstream/9204",
			wantVersion:  "4.10.2",
		},
		{
			name:         "version prefix",
			args:         []string{"--os", "linux", "--version", "4.10"},
			wantRevision: 28257,
			wantDownload: "/bitstream/9204",
			wantVersion:  "4.10.2",
		},
		{
			name:         "date bound",
			args:         []string{"--os", "win", "--date", "2021-03-01"},
			wantRevision: 29402,
			wantDownload: "/bitstream/9203",
			wantVersion:  "4.11.20210226",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--db", dbPath, "find", "--output", "json"}, tt.args...)
			out, err := runApp(t, args...)
			if err != nil {
				t.Fatalf("find error: %v", err)
			}

			var rec query.ResolvedRecord
			if err := json.Unmarshal([]byte(out), &rec); err != nil {
				t.Fatalf("output is not a record: %v\n%s", err, out)
			}
			if rec.Revision != tt.wantRevision {
				t.Errorf("revision = %d, want %d", rec.Revision, tt.wantRevision)
			}
			if rec.DownloadURL != tt.wantDownload {
				t.Errorf("download_url = %q, want %q", rec.DownloadURL, tt.wantDownload)
			}
			if rec.Version == nil || *rec.Version != tt.wantVersion {
				t.Errorf("version = %v, want %q", rec.Version, tt.wantVersion)
			}
		})
	}
}

func TestFind_Errors(t *testing.T) {
	dbPath := seedDB(t)

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"no build for platform", []string{"--os", "macosx"}, query.ErrNotFound},
		{"two modes", []string{"--os", "linux", "--revision", "1", "--version", "4"}, query.ErrAmbiguousCriteria},
		{"two modes with unknown platform", []string{"--os", "plan9", "--revision", "1", "--date", "2021-01-01"}, query.ErrAmbiguousCriteria},
		{"unknown platform", []string{"--os", "plan9"}, query.ErrInvalidCriteria},
		{"non-integer offset", []string{"--os", "linux", "--offset", "x"}, query.ErrInvalidCriteria},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--db", dbPath, "find"}, tt.args...)
			_, err := runApp(t, args...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("find error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFind_TextOutput(t *testing.T) {
	dbPath := seedDB(t)

	out, err := runApp(t, "--db", dbPath, "find", "--os", "linux", "--stability", "nightly")
	if err != nil {
		t.Fatalf("find error: %v", err)
	}
	for _, want := range []string{
		"Name:",
		"Slicer-4.13.0-2021-05-02-linux-amd64.tar.gz",
		"Stability:",
		"Nightly",
		"Download Url:",
		"/bitstream/9201",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFindAll(t *testing.T) {
	dbPath := seedDB(t)

	out, err := runApp(t, "--db", dbPath, "findall", "--output", "json")
	if err != nil {
		t.Fatalf("findall error: %v", err)
	}

	var results map[string]map[string]*query.ResolvedRecord
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("output is not a result map: %v\n%s", err, out)
	}

	tests := []struct {
		platform     string
		stability    string
		wantRevision int // 0 means no build
	}{
		{"linux", "release", 29402},
		{"linux", "nightly", 30000},
		{"win", "release", 29402},
		{"win", "nightly", 0},
		{"macosx", "release", 0},
		{"macosx", "nightly", 0},
	}
	for _, tt := range tests {
		t.Run(tt.platform+"/"+tt.stability, func(t *testing.T) {
			byStability, ok := results[tt.platform]
			if !ok {
				t.Fatalf("platform %s missing from results", tt.platform)
			}
			rec, ok := byStability[tt.stability]
			if !ok {
				t.Fatalf("stability %s missing for %s", tt.stability, tt.platform)
			}
			if tt.wantRevision == 0 {
				if rec != nil {
					t.Errorf("got %+v, want null", rec)
				}
				return
			}
			if rec == nil || rec.Revision != tt.wantRevision {
				t.Errorf("got %+v, want revision %d", rec, tt.wantRevision)
			}
		})
	}
}

func TestFindAll_TextOutput(t *testing.T) {
	dbPath := seedDB(t)

	out, err := runApp(t, "--db", dbPath, "findall")
	if err != nil {
		t.Fatalf("findall error: %v", err)
	}
	for _, want := range []string{"PLATFORM", "Linux", "Windows", "macOS", "Release", "Nightly", "29402", "/bitstream/9201"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestReleases(t *testing.T) {
	dbPath := seedDB(t)

	out, err := runApp(t, "--db", dbPath, "releases")
	if err != nil {
		t.Fatalf("releases error: %v", err)
	}
	want := "4.11.20210226\n4.10.2\n"
	if out != want {
		t.Errorf("releases output = %q, want %q", out, want)
	}
}

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"stat": "ok", "code": "0", "data": [%s, %s]}`, midasFixtures[1], midasFixtures[2])
	}))
	defer server.Close()

	dbPath := filepath.Join(t.TempDir(), "var", "records.sqlite")

	out, err := runApp(t, "--db", dbPath, "fetch", "--url", server.URL, "--output", "json")
	if err != nil {
		t.Fatalf("fetch error: %v", err)
	}
	var result upstream.IngestResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output is not an ingest result: %v\n%s", err, out)
	}
	if result.Fetched != 2 || result.Inserted != 2 || result.Skipped != 0 {
		t.Errorf("fetch result = %+v, want 2 fetched, 2 inserted", result)
	}

	// fetched records are immediately resolvable
	out, err = runApp(t, "--db", dbPath, "find", "--os", "win", "--output", "json")
	if err != nil {
		t.Fatalf("find after fetch error: %v", err)
	}
	if !strings.Contains(out, `"download_url": "/bitstream/9203"`) {
		t.Errorf("find after fetch = %s", out)
	}

	out, err = runApp(t, "--db", dbPath, "fetch", "--url", server.URL)
	if err != nil {
		t.Fatalf("second fetch error: %v", err)
	}
	if !strings.Contains(out, "0 inserted") {
		t.Errorf("second fetch output = %q, want 0 inserted", out)
	}
}

func TestSitegen(t *testing.T) {
	dbPath := seedDB(t)
	outDir := t.TempDir()

	if _, err := runApp(t, "--db", dbPath, "sitegen", "--out", outDir, "--hostname", "https://download.example.org"); err != nil {
		t.Fatalf("sitegen error: %v", err)
	}

	page, err := os.ReadFile(filepath.Join(outDir, "index.html"))
	if err != nil {
		t.Fatalf("index.html not written: %v", err)
	}
	if !strings.Contains(string(page), "https://download.example.org/bitstream/9202") {
		t.Errorf("index.html does not link the linux release")
	}
	if _, err := os.Stat(filepath.Join(outDir, "findall.json")); err != nil {
		t.Errorf("findall.json not written: %v", err)
	}
}

func TestSitegen_DryRunWritesNothing(t *testing.T) {
	dbPath := seedDB(t)
	outDir := t.TempDir()

	if _, err := runApp(t, "--db", dbPath, "sitegen", "--out", outDir, "--dry-run"); err != nil {
		t.Fatalf("sitegen error: %v", err)
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("dry run wrote %d entries", len(entries))
	}
}

func TestConfig_Overrides(t *testing.T) {
	out, err := runApp(t, "--api", "Girder_v1", "--db-fallback", "1", "--log-level", "debug", "config")
	if err != nil {
		t.Fatalf("config error: %v", err)
	}
	for _, want := range []string{"api: Girder_v1", "fallback: true", "level: debug"} {
		if !strings.Contains(out, want) {
			t.Errorf("config output missing %q:\n%s", want, out)
		}
	}
}

func TestConfig_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dlserver.yaml")

	out, err := runApp(t, "--api", "Girder_v1", "config", "--write", path)
	if err != nil {
		t.Fatalf("config --write error: %v", err)
	}
	if out != "" {
		t.Errorf("config --write printed %q, want nothing", out)
	}

	// the saved file is picked up by a later run
	app := NewApp()
	var buf bytes.Buffer
	app.Writer = &buf
	app.ErrWriter = io.Discard
	if err := app.RunContext(context.Background(), []string{"dlserver", "--config", path, "config"}); err != nil {
		t.Fatalf("config with saved file error: %v", err)
	}
	if !strings.Contains(buf.String(), "api: Girder_v1") {
		t.Errorf("saved config not loaded:\n%s", buf.String())
	}
}

func TestConfig_InvalidAPI(t *testing.T) {
	_, err := runApp(t, "--api", "Bogus_v9", "config")
	if !errors.Is(err, catalog.ErrUnknownSource) {
		t.Errorf("config error = %v, want ErrUnknownSource", err)
	}
}

func TestServe_MissingDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "missing.sqlite")

	_, err := runApp(t, "--db", dbPath, "serve", "--no-watch")
	if !errors.Is(err, storage.ErrDatabaseMissing) {
		t.Errorf("serve error = %v, want ErrDatabaseMissing", err)
	}
}

func TestFieldLabel(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"name", "Name"},
		{"build_date", "Build Date"},
		{"checkout_date", "Checkout Date"},
	}
	for _, tt := range tests {
		if got := fieldLabel(tt.key); got != tt.want {
			t.Errorf("fieldLabel(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

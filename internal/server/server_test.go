package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clean-dependency-project/dlserver/internal/catalog"
	"github.com/clean-dependency-project/dlserver/internal/query"
)

// fixedCatalog serves one snapshot to a real query.Service.
type fixedCatalog struct {
	cat *catalog.Catalog
	err error
}

func (f fixedCatalog) Get(ctx context.Context) (*catalog.Catalog, error) {
	return f.cat, f.err
}

func testCatalog() *catalog.Catalog {
	mk := func(id, os string, rev int, release, date string) catalog.Record {
		sub := "nightly"
		if release != "" {
			sub = "release"
		}
		return catalog.Record{
			ID: id, Source: catalog.SourceMidas, Platform: os, Arch: "amd64", Revision: rev,
			Stability: release, SubmissionType: sub, BuildDate: date, CheckoutDate: date,
			Filename: "Slicer-4.11.0-" + catalog.DateOnly(date) + "-" + os + "-amd64.tar.gz",
			ArtifactID: "9" + id, Size: 2048, Checksum: "md5-" + id,
		}
	}
	records := []catalog.Record{
		mk("1", "linux", 100, "", "2023-01-03 10:00:00"),
		mk("2", "linux", 100, "", "2023-01-02 10:00:00"),
		mk("3", "linux", 99, "4.5.0", "2023-01-01 10:00:00"),
		mk("4", "win", 99, "4.5.0", "2023-01-01 11:00:00"),
	}
	return &catalog.Catalog{Records: records, Count: int64(len(records))}
}

func newTestServer(t *testing.T, snap fixedCatalog, opts Options) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := query.NewService(snap, catalog.SourceMidas, query.NewProjector(catalog.SourceMidas, ""), logger)
	if opts.SourceURL == nil {
		opts.SourceURL = func(id string) string {
			return strings.ReplaceAll(catalog.SourceMidas.DefaultDownloadURL(), "{id}", id)
		}
	}
	ts := httptest.NewServer(New(svc, opts, logger).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func get(t *testing.T, client *http.Client, rawURL string) (*http.Response, []byte) {
	t.Helper()
	resp, err := client.Get(rawURL)
	if err != nil {
		t.Fatalf("GET %s: %v", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return resp, body
}

func TestFind(t *testing.T) {
	ts := newTestServer(t, fixedCatalog{cat: testCatalog()}, Options{})

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantRev    int
	}{
		{"latest release", "os=linux", http.StatusOK, 99},
		{"latest any", "os=linux&stability=any", http.StatusOK, 100},
		{"revision offset", "os=linux&revision=100&offset=-1", http.StatusOK, 99},
		{"off the end", "os=linux&revision=100&offset=-2", http.StatusNotFound, 0},
		{"ambiguous", "os=linux&revision=1&date=2020-01-01", http.StatusBadRequest, 0},
		{"unknown os", "os=amiga", http.StatusBadRequest, 0},
		{"bad offset", "os=linux&offset=x", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, http.DefaultClient, ts.URL+"/find?"+tt.query)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", resp.StatusCode, tt.wantStatus, body)
			}
			if resp.Header.Get("Content-Type") != "application/json" {
				t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
			}
			if tt.wantStatus != http.StatusOK {
				var e ErrorResponse
				if err := json.Unmarshal(body, &e); err != nil {
					t.Fatalf("error body is not JSON: %v", err)
				}
				if e.Code != tt.wantStatus || e.Error == "" {
					t.Errorf("error body = %+v", e)
				}
				return
			}
			var rec query.ResolvedRecord
			if err := json.Unmarshal(body, &rec); err != nil {
				t.Fatalf("body is not a record: %v", err)
			}
			if rec.Revision != tt.wantRev || rec.OS != "linux" {
				t.Errorf("record = %+v, want linux revision %d", rec, tt.wantRev)
			}
		})
	}
}

func TestFindAll(t *testing.T) {
	ts := newTestServer(t, fixedCatalog{cat: testCatalog()}, Options{})

	resp, body := get(t, http.DefaultClient, ts.URL+"/findall")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var all map[string]map[string]*query.ResolvedRecord
	if err := json.Unmarshal(body, &all); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("platforms = %d, want 3", len(all))
	}
	if all["win"]["release"] == nil || all["win"]["nightly"] != nil {
		t.Errorf("win = %+v", all["win"])
	}
	if !strings.Contains(string(body), `"nightly":null`) {
		t.Error("unmatched entries should encode as null")
	}

	resp, _ = get(t, http.DefaultClient, ts.URL+"/findall?version=4&revision=1")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("ambiguous findall status = %d", resp.StatusCode)
	}
}

func TestDownloadRedirects(t *testing.T) {
	ts := newTestServer(t, fixedCatalog{cat: testCatalog()}, Options{})
	client := noRedirectClient()

	resp, _ := get(t, client, ts.URL+"/download?os=win")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want 302", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/bitstream/94" {
		t.Errorf("Location = %q, want /bitstream/94", loc)
	}

	resp, _ = get(t, client, ts.URL+"/bitstream/94")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("bitstream status = %d, want 302", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "https://slicer.kitware.com/midas3/download?bitstream=94" {
		t.Errorf("bitstream Location = %q", loc)
	}

	resp, body := get(t, client, ts.URL+"/download?os=macosx")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unmatched download status = %d, want 404", resp.StatusCode)
	}
	if !strings.Contains(string(body), "no matching revision") {
		t.Errorf("404 page body = %s", body)
	}
}

func TestDownloadPage(t *testing.T) {
	ts := newTestServer(t, fixedCatalog{cat: testCatalog()}, Options{DownloadHostname: "https://dl.example.org"})

	resp, body := get(t, http.DefaultClient, ts.URL+"/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	page := string(body)
	for _, want := range []string{"https://dl.example.org/bitstream/93", "https://dl.example.org/download-stats", "Windows"} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}

	resp, body = get(t, http.DefaultClient, ts.URL+"/assets/style.css")
	if resp.StatusCode != http.StatusOK || len(body) == 0 {
		t.Errorf("stylesheet status = %d, %d bytes", resp.StatusCode, len(body))
	}
}

func TestReleases(t *testing.T) {
	ts := newTestServer(t, fixedCatalog{cat: testCatalog()}, Options{})

	resp, body := get(t, http.DefaultClient, ts.URL+"/releases")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got struct {
		Releases []string `json:"releases"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if len(got.Releases) != 1 || got.Releases[0] != "4.5.0" {
		t.Errorf("releases = %v", got.Releases)
	}
}

func TestStoreUnavailable(t *testing.T) {
	storeErr := errors.Join(catalog.ErrStoreUnavailable, errors.New("unable to open database file"))
	ts := newTestServer(t, fixedCatalog{err: storeErr}, Options{
		Ready: func(ctx context.Context) error { return storeErr },
	})

	resp, body := get(t, http.DefaultClient, ts.URL+"/find?os=linux")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("find status = %d, want 503", resp.StatusCode)
	}
	if strings.Contains(string(body), "unable to open") {
		t.Error("5xx responses should not leak internal errors")
	}

	resp, _ = get(t, http.DefaultClient, ts.URL+"/readyz")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("readyz status = %d, want 503", resp.StatusCode)
	}
}

func TestHealthAndVersion(t *testing.T) {
	ts := newTestServer(t, fixedCatalog{cat: testCatalog()}, Options{Version: "1.2.3"})

	resp, _ := get(t, http.DefaultClient, ts.URL+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}
	resp, _ = get(t, http.DefaultClient, ts.URL+"/readyz")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("readyz status = %d", resp.StatusCode)
	}
	_, body := get(t, http.DefaultClient, ts.URL+"/version")
	if !strings.Contains(string(body), `"1.2.3"`) {
		t.Errorf("version body = %s", body)
	}

	resp, err := http.Post(ts.URL+"/find", "text/plain", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /find status = %d, want 405", resp.StatusCode)
	}
}

func TestListenAndServe_Shutdown(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := query.NewService(fixedCatalog{cat: testCatalog()}, catalog.SourceMidas, query.NewProjector(catalog.SourceMidas, ""), logger)
	srv := New(svc, Options{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe() did not return after cancel")
	}
}


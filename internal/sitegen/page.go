package sitegen

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path/filepath"
	"sync"

	"log/slog"

	"github.com/clean-dependency-project/dlserver/internal/query"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

//go:embed assets/style.css
var assetsFS embed.FS

var (
	templatesOnce sync.Once
	templates     *template.Template
	templatesErr  error
)

// loadTemplates parses the embedded templates once.
func loadTemplates() (*template.Template, error) {
	templatesOnce.Do(func() {
		templates, templatesErr = template.New("").Funcs(template.FuncMap{
			"formatBytes": formatBytes,
		}).ParseFS(templateFS, "templates/*.tmpl")
		if templatesErr != nil {
			templatesErr = fmt.Errorf("failed to parse templates: %w", templatesErr)
		}
	})
	return templates, templatesErr
}

// RenderPage renders the download page for model to w.
func RenderPage(w io.Writer, model *PageModel) error {
	tmpl, err := loadTemplates()
	if err != nil {
		return err
	}
	if err := tmpl.ExecuteTemplate(w, "download.tmpl", model); err != nil {
		return fmt.Errorf("failed to execute download template: %w", err)
	}
	return nil
}

// RenderError renders the error page shown for rejected or unmatched requests.
func RenderError(w io.Writer, code int, message string) error {
	tmpl, err := loadTemplates()
	if err != nil {
		return err
	}
	data := struct {
		Code    int
		Message string
	}{code, message}
	if err := tmpl.ExecuteTemplate(w, "error.tmpl", data); err != nil {
		return fmt.Errorf("failed to execute error template: %w", err)
	}
	return nil
}

// Stylesheet returns the embedded stylesheet.
func Stylesheet() ([]byte, error) {
	data, err := fs.ReadFile(assetsFS, "assets/style.css")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded style.css: %w", err)
	}
	return data, nil
}

// renderSite writes index.html, findall.json and the stylesheet into outDir.
// Returns the number of files that changed.
func renderSite(model *PageModel, results query.AllResults, outDir string, logger *slog.Logger) (int, error) {
	var page bytes.Buffer
	if err := RenderPage(&page, model); err != nil {
		return 0, err
	}

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to encode findall.json: %w", err)
	}
	data = append(data, '\n')

	css, err := Stylesheet()
	if err != nil {
		return 0, err
	}

	files := []struct {
		path    string
		content []byte
	}{
		{filepath.Join(outDir, "index.html"), page.Bytes()},
		{filepath.Join(outDir, "findall.json"), data},
		{filepath.Join(outDir, "assets", "style.css"), css},
	}

	changed := 0
	for _, f := range files {
		written, err := writeFileIfChanged(f.path, f.content, logger)
		if err != nil {
			return changed, fmt.Errorf("failed to write %s: %w", f.path, err)
		}
		if written {
			changed++
		}
	}
	return changed, nil
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

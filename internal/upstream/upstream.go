// Package upstream retrieves raw build records from the package APIs that
// publish them (Midas v1 and Girder v1).
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/clean-dependency-project/dlserver/internal/catalog"
)

const (
	// DefaultTimeout is the default HTTP client timeout
	DefaultTimeout = 60 * time.Second

	// DefaultUserAgent is the default User-Agent header
	DefaultUserAgent = "dlserver/1.0"

	// DefaultGirderAppID is the application whose packages are listed on Girder.
	DefaultGirderAppID = "5f4474d0e1d8c75dfc705482"

	midasPackagesMethod = "midas.slicerpackages.get.packages"
	midasProductName    = "Slicer"
)

// Custom error types for better error handling
var (
	// ErrInvalidResponse indicates the API response was invalid
	ErrInvalidResponse = errors.New("invalid API response")

	// ErrNetworkError indicates a network-related error
	ErrNetworkError = errors.New("network error")

	// ErrBaseURLRequired indicates the client has nowhere to fetch from
	ErrBaseURLRequired = errors.New("upstream base URL is required")
)

// ErrAPIError represents an API-specific error
type ErrAPIError struct {
	StatusCode int
	Message    string
	Source     string
}

func (e ErrAPIError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("API error from %s: %d %s", e.Source, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error: %d %s", e.StatusCode, e.Message)
}

func (e ErrAPIError) Is(target error) bool {
	if target == ErrInvalidResponse && e.StatusCode >= 200 && e.StatusCode < 500 {
		return true
	}
	if target == ErrNetworkError && (e.StatusCode == 0 || e.StatusCode >= 500) {
		return true
	}
	return false
}

// Client fetches the full list of raw records from one package API.
type Client interface {
	// FetchRecords returns every package record the API publishes, undecoded.
	FetchRecords(ctx context.Context) ([]json.RawMessage, error)

	// Source returns the catalog source the records belong to.
	Source() catalog.Source
}

// HTTPClient defines the interface for HTTP operations
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds configuration for an upstream client
type Config struct {
	Source     catalog.Source
	BaseURL    string
	AppID      string // Girder application id
	UserAgent  string
	Timeout    time.Duration
	HTTPClient HTTPClient
}

// NewClient creates a client for config.Source.
func NewClient(config Config) (Client, error) {
	if config.BaseURL == "" {
		return nil, ErrBaseURLRequired
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{
			Timeout: config.Timeout,
		}
	}

	switch config.Source {
	case catalog.SourceMidas:
		return &midasClient{config: config}, nil
	case catalog.SourceGirder:
		if config.AppID == "" {
			config.AppID = DefaultGirderAppID
		}
		return &girderClient{config: config}, nil
	default:
		return nil, fmt.Errorf("%w: %d", catalog.ErrUnknownSource, int(config.Source))
	}
}

type midasClient struct {
	config Config
}

func (c *midasClient) Source() catalog.Source {
	return catalog.SourceMidas
}

func (c *midasClient) FetchRecords(ctx context.Context) ([]json.RawMessage, error) {
	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse API URL: %w", err)
	}
	q := u.Query()
	q.Set("productname", midasProductName)
	q.Set("method", midasPackagesMethod)
	u.RawQuery = q.Encode()

	var payload struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := getJSON(ctx, c.config, u.String(), &payload); err != nil {
		return nil, err
	}
	if payload.Data == nil {
		return nil, ErrAPIError{StatusCode: http.StatusOK, Message: "response has no data field", Source: catalog.SourceMidas.String()}
	}
	return payload.Data, nil
}

type girderClient struct {
	config Config
}

func (c *girderClient) Source() catalog.Source {
	return catalog.SourceGirder
}

func (c *girderClient) FetchRecords(ctx context.Context) ([]json.RawMessage, error) {
	apiURL, err := url.JoinPath(c.config.BaseURL, "app", c.config.AppID, "package")
	if err != nil {
		return nil, fmt.Errorf("failed to construct API URL: %w", err)
	}

	var records []json.RawMessage
	if err := getJSON(ctx, c.config, apiURL+"?limit=0", &records); err != nil {
		return nil, err
	}
	return records, nil
}

func getJSON(ctx context.Context, config Config, apiURL string, out any) error {
	source := config.Source.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", config.UserAgent)

	resp, err := config.HTTPClient.Do(req)
	if err != nil {
		return ErrAPIError{
			StatusCode: 0,
			Message:    err.Error(),
			Source:     source,
		}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return ErrAPIError{
			StatusCode: resp.StatusCode,
			Message:    resp.Status,
			Source:     source,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return ErrAPIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to decode response: %v", err),
			Source:     source,
		}
	}
	return nil
}

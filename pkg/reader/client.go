// Package reader implements the client for the remote script reader API:
// the first-page request that declares a script's page count and the per-page
// request that returns base64 encoded page images.
package reader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/script-reader-dl/pkg/document"
	"github.com/Sternrassler/script-reader-dl/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for reader API calls.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scriptdl_requests_total",
		Help: "Total reader API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scriptdl_request_duration_seconds",
		Help:    "Reader API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scriptdl_errors_total",
		Help: "Total reader API errors by class",
	}, []string{"class"})
)

const (
	// DefaultBaseURL is the host serving the script reader.
	DefaultBaseURL = "http://ep.mylines.com"

	// EndpointLoadPageData returns the script descriptor together with the first page.
	EndpointLoadPageData = "/BrowseScript.aspx/LoadPageData"

	// EndpointLoadSinglePage returns the images of one page index.
	EndpointLoadSinglePage = "/BrowseScript.aspx/LoadSinglePage"

	maxErrorBody = 512
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is the scheme and host of the reader service.
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout bounds a single request. Zero leaves it to the transport.
	Timeout time.Duration
}

// DefaultConfig returns the configuration for the public reader service.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: "script-reader-dl/0.1.0",
	}
}

// Client talks to the reader API. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
}

// New creates a new reader client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultConfig().UserAgent
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    base,
		config:     cfg,
		logger:     logging.NewLogger(logging.ComponentReader),
	}, nil
}

// Describe issues the first-page request and returns the declared page count
// and script name.
func (c *Client) Describe(ctx context.Context, token string) (*document.Descriptor, error) {
	var resp pageDataResponse
	status, err := c.post(ctx, EndpointLoadPageData, loadPageDataRequest{
		SessionVars:    token,
		NumPagesToLoad: 1,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.D == nil {
		return nil, c.shape(EndpointLoadPageData, status, `missing "d" envelope`)
	}
	if len(resp.D.Scripts) == 0 {
		return nil, c.shape(EndpointLoadPageData, status, "missing script descriptor")
	}

	s := resp.D.Scripts[0]
	if s.PageCount == nil {
		return nil, c.shape(EndpointLoadPageData, status, "missing page count")
	}
	if *s.PageCount < 0 {
		return nil, c.shape(EndpointLoadPageData, status, fmt.Sprintf("negative page count %d", *s.PageCount))
	}

	desc := &document.Descriptor{
		ScriptID:  s.ID,
		Name:      s.displayName(),
		PageCount: *s.PageCount,
	}

	c.logger.Debug().
		Int("script_id", desc.ScriptID).
		Str("name", desc.Name).
		Int("total", desc.PageCount).
		Msg("Script described")

	return desc, nil
}

// FetchPage fetches the images of a single page index. The response may hold
// zero, one or several sub-pages.
func (c *Client) FetchPage(ctx context.Context, token string, pageIndex int) ([]document.SubPage, error) {
	var resp singlePageResponse
	status, err := c.post(ctx, EndpointLoadSinglePage, loadSinglePageRequest{
		SessionVars: token,
		PageNum:     pageIndex,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.D == nil {
		return nil, c.shape(EndpointLoadSinglePage, status, `missing "d" envelope`)
	}
	if resp.D.Pages == nil {
		return nil, c.shape(EndpointLoadSinglePage, status, "missing page image list")
	}

	pages := make([]document.SubPage, 0, len(*resp.D.Pages))
	for _, p := range *resp.D.Pages {
		pages = append(pages, document.SubPage{
			PageNum:     p.PageNum,
			EncodedFile: p.EncodedFile,
		})
	}

	c.logger.Debug().
		Int("page", pageIndex).
		Int("subpages", len(pages)).
		Msg("Page fetched")

	return pages, nil
}

// post sends a JSON request to endpoint and decodes the JSON response into out.
// It returns the HTTP status code of the response when one was received.
func (c *Client) post(ctx context.Context, endpoint string, body, out any) (int, error) {
	name := endpointLabel(endpoint)

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(name).Observe(time.Since(startTime).Seconds())
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	target := *c.baseURL
	target.Path = c.baseURL.Path + endpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		class := c.classifyError(nil, err)
		errorsTotal.WithLabelValues(string(class)).Inc()
		requestsTotal.WithLabelValues(name, "network_error").Inc()
		c.logger.Warn().Err(err).Str("endpoint", name).Msg("Reader request failed")
		return 0, &RequestError{
			Endpoint: name,
			Class:    class,
			Message:  "request failed",
			Err:      err,
		}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(name, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		class := c.classifyError(resp, nil)
		errorsTotal.WithLabelValues(string(class)).Inc()

		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn().
			Str("endpoint", name).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Reader request error")

		return resp.StatusCode, &RequestError{
			Endpoint:   name,
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    strings.TrimSpace(resp.Status + " " + string(snippet)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassShape)).Inc()
		return resp.StatusCode, shapeError(name, resp.StatusCode, "decode response", err)
	}

	return resp.StatusCode, nil
}

func (c *Client) shape(endpoint string, status int, message string) error {
	errorsTotal.WithLabelValues(string(ErrorClassShape)).Inc()
	c.logger.Warn().
		Str("endpoint", endpointLabel(endpoint)).
		Str("error_class", string(ErrorClassShape)).
		Msg(message)
	return shapeError(endpointLabel(endpoint), status, message, nil)
}

// classifyError categorizes an error for observability and handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		// 1xx and 3xx are not expected from a page method.
		return ErrorClassServer
	}
}

// endpointLabel trims the page prefix so metric labels stay short.
func endpointLabel(endpoint string) string {
	if i := strings.LastIndex(endpoint, "/"); i >= 0 {
		return endpoint[i+1:]
	}
	return endpoint
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

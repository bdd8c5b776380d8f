// Package metrics provides the Prometheus registry reference and textfile
// export for script downloads. All metrics are defined in their respective
// packages (reader, pagination, assembler) to maintain modularity and avoid
// circular dependencies.
//
// A download is a short-lived process, so instead of serving /metrics the CLI
// writes the gathered metrics once, in the node-exporter textfile format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer WriteTextfile exports.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// WriteTextfile writes all gathered metrics to path. The parent directory is
// created if needed.
func WriteTextfile(path string) error {
	if path == "" {
		return fmt.Errorf("metrics file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, Gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/reader):
//   - scriptdl_requests_total{endpoint, status} (Counter): Reader API requests by endpoint and HTTP status
//   - scriptdl_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - scriptdl_errors_total{class} (Counter): Errors by class (client, server, network, shape)
//
// Fetch Metrics (pkg/pagination):
//   - scriptdl_pages_fetched_total (Counter): Page indices fetched successfully
//   - scriptdl_page_fetch_failures_total (Counter): Page indices whose fetch failed
//   - scriptdl_subpages_fetched_total (Counter): Sub-page images received
//   - scriptdl_fetch_in_flight (Gauge): Page requests currently outstanding
//
// Assembly Metrics (pkg/assembler):
//   - scriptdl_pdf_pages_written_total (Counter): PDF pages emitted
//   - scriptdl_assembly_duration_seconds (Histogram): Decode and write time per PDF
//
// Example Prometheus Queries:
//
//   # Page failure ratio
//   scriptdl_page_fetch_failures_total /
//   (scriptdl_pages_fetched_total + scriptdl_page_fetch_failures_total)
//
//   # Sub-pages per page index
//   scriptdl_subpages_fetched_total / scriptdl_pages_fetched_total
//
//   # P95 page request latency
//   histogram_quantile(0.95, rate(scriptdl_request_duration_seconds_bucket{endpoint="LoadSinglePage"}[5m]))

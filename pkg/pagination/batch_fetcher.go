package pagination

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/script-reader-dl/pkg/document"
	"github.com/Sternrassler/script-reader-dl/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for page fetching.
var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriptdl_pages_fetched_total",
		Help: "Total page indices fetched successfully",
	})

	pageFetchFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriptdl_page_fetch_failures_total",
		Help: "Total page indices whose fetch failed",
	})

	subpagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriptdl_subpages_fetched_total",
		Help: "Total sub-page images received",
	})

	fetchInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scriptdl_fetch_in_flight",
		Help: "Page requests currently outstanding",
	})
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of outstanding page requests.
	// 1 fetches pages sequentially.
	MaxConcurrency int
	// Timeout per page fetch. Zero leaves it to the transport.
	Timeout time.Duration
	// Buffer size for channels
	BufferSize int
}

// DefaultConfig returns the configuration used by the CLI.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 20,
		BufferSize:     400,
	}
}

// PageFetcher is implemented by the reader client.
type PageFetcher interface {
	// Describe returns the script descriptor including the declared page count.
	Describe(ctx context.Context, token string) (*document.Descriptor, error)
	// FetchPage fetches the sub-pages of a single page index.
	FetchPage(ctx context.Context, token string, pageIndex int) ([]document.SubPage, error)
}

// Observer receives progress while FetchAll runs. PageCompleted is called once
// per page index after it settled, successfully or not, from a single goroutine.
type Observer interface {
	PageCompleted(completed, total int)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(completed, total int)

// PageCompleted calls f.
func (f ObserverFunc) PageCompleted(completed, total int) { f(completed, total) }

type nopObserver struct{}

func (nopObserver) PageCompleted(int, int) {}

// PageResult represents the result of fetching a single page index
type PageResult struct {
	PageIndex int
	Pages     []document.SubPage
	Error     error
}

// BatchFetcher handles parallel fetching of all pages of a script
type BatchFetcher struct {
	fetcher  PageFetcher
	config   Config
	observer Observer
	logger   zerolog.Logger
}

// NewBatchFetcher creates a new batch fetcher. A nil observer discards progress.
func NewBatchFetcher(fetcher PageFetcher, config Config, observer Observer) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	if config.Timeout < 0 {
		config.Timeout = 0
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if observer == nil {
		observer = nopObserver{}
	}

	return &BatchFetcher{
		fetcher:  fetcher,
		config:   config,
		observer: observer,
		logger:   logging.NewLogger(logging.ComponentPagination),
	}
}

// Discover issues the first-page request and returns the script descriptor.
func (bf *BatchFetcher) Discover(ctx context.Context, token string) (*document.Descriptor, error) {
	desc, err := bf.fetcher.Describe(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("describe script: %w", err)
	}

	bf.logger.Info().
		Str("name", desc.Name).
		Int("total_pages", desc.PageCount).
		Msg("Script discovered")

	return desc, nil
}

// DiscoverPageCount returns the page count declared by the reader.
func (bf *BatchFetcher) DiscoverPageCount(ctx context.Context, token string) (int, error) {
	desc, err := bf.Discover(ctx, token)
	if err != nil {
		return 0, err
	}
	return desc.PageCount, nil
}

// PlanPageRange returns the number of page indices to fetch. A nil cap means
// no limit; a cap <= 0 is rejected.
func PlanPageRange(declaredCount int, maxPages *int) (int, error) {
	if declaredCount < 0 {
		return 0, fmt.Errorf("%w: declared page count %d is negative", ErrInvalidArgument, declaredCount)
	}
	if maxPages == nil {
		return declaredCount, nil
	}
	if *maxPages <= 0 {
		return 0, fmt.Errorf("%w: max pages must be positive (got %d)", ErrInvalidArgument, *maxPages)
	}
	return min(declaredCount, *maxPages), nil
}

// FetchAll fetches every page index in [1, pageRange] using a worker pool of
// at most MaxConcurrency workers. Every index is requested exactly once and
// the call returns only after all requests settled. The returned set is frozen.
//
// If any index fails, FetchAll returns a *PartialFetchError carrying the
// pages that did arrive and no page set.
func (bf *BatchFetcher) FetchAll(ctx context.Context, token string, pageRange int) (*document.PageSet, error) {
	if pageRange < 0 {
		return nil, fmt.Errorf("%w: page range %d is negative", ErrInvalidArgument, pageRange)
	}

	start := time.Now()
	set := document.NewPageSet()

	if pageRange == 0 {
		set.Freeze()
		bf.logger.Info().Int("pages", 0).Msg("Nothing to fetch")
		return set, nil
	}

	workers := min(bf.config.MaxConcurrency, pageRange)

	bf.logger.Info().
		Int("total_pages", pageRange).
		Int("workers", workers).
		Msg("Starting parallel page fetch")

	pageQueue := make(chan int, min(bf.config.BufferSize, pageRange))
	pageResults := make(chan PageResult, min(bf.config.BufferSize, pageRange))

	go func() {
		for page := 1; page <= pageRange; page++ {
			pageQueue <- page
		}
		close(pageQueue)
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go bf.worker(ctx, token, pageQueue, pageResults, &wg, i)
	}

	go func() {
		wg.Wait()
		close(pageResults)
	}()

	// Results are accumulated on this goroutine only.
	var (
		completed int
		succeeded []int
		failed    []int
		errs      = make(map[int]error)
	)
	for result := range pageResults {
		completed++

		err := result.Error
		if err == nil {
			if addErr := set.Add(result.Pages...); addErr != nil {
				err = fmt.Errorf("page %d: %w", result.PageIndex, addErr)
			}
		}

		if err != nil {
			bf.logger.Warn().
				Err(err).
				Int("page", result.PageIndex).
				Msg("Page fetch failed")
			pageFetchFailuresTotal.Inc()
			failed = append(failed, result.PageIndex)
			errs[result.PageIndex] = err
		} else {
			pagesFetchedTotal.Inc()
			subpagesFetchedTotal.Add(float64(len(result.Pages)))
			succeeded = append(succeeded, result.PageIndex)
		}

		bf.observer.PageCompleted(completed, pageRange)

		// Progress logging every 50 pages
		if completed%50 == 0 {
			bf.logger.Info().
				Int("completed", completed).
				Int("total", pageRange).
				Float64("progress_pct", float64(completed)/float64(pageRange)*100).
				Msg("Fetch progress")
		}
	}

	set.Freeze()
	sort.Ints(succeeded)
	sort.Ints(failed)

	if len(failed) > 0 {
		bf.logger.Warn().
			Int("fetched_pages", len(succeeded)).
			Int("failed_pages", len(failed)).
			Int("total_pages", pageRange).
			Dur("duration", time.Since(start)).
			Msg("Fetch incomplete")
		return nil, &PartialFetchError{
			Pages:     set,
			Succeeded: succeeded,
			Failed:    failed,
			Errs:      errs,
		}
	}

	bf.logger.Info().
		Int("pages", len(succeeded)).
		Int("subpages", set.Len()).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return set, nil
}

// worker processes page indices from the queue until it is drained.
func (bf *BatchFetcher) worker(ctx context.Context, token string, pageQueue <-chan int, results chan<- PageResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for pageIndex := range pageQueue {
		results <- bf.fetchOne(ctx, token, pageIndex)
		pagesProcessed++
	}

	bf.logger.Debug().
		Int("worker_id", workerID).
		Int("pages_processed", pagesProcessed).
		Msg("Worker completed")
}

func (bf *BatchFetcher) fetchOne(ctx context.Context, token string, pageIndex int) PageResult {
	fetchInFlight.Inc()
	defer fetchInFlight.Dec()

	pageCtx := ctx
	if bf.config.Timeout > 0 {
		var cancel context.CancelFunc
		pageCtx, cancel = context.WithTimeout(ctx, bf.config.Timeout)
		defer cancel()
	}

	pages, err := bf.fetcher.FetchPage(pageCtx, token, pageIndex)
	return PageResult{
		PageIndex: pageIndex,
		Pages:     pages,
		Error:     err,
	}
}

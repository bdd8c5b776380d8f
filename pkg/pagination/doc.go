// Package pagination drives the download of a whole script from the reader.
//
// The reader declares a script's page count in its first response and then
// serves each page index on its own request. This package implements a worker
// pool pattern to fetch every index under a concurrency cap.
//
// Example usage:
//
//	fetcher := pagination.NewBatchFetcher(readerClient, pagination.DefaultConfig(), nil)
//	total, err := fetcher.DiscoverPageCount(ctx, token)
//	n, err := pagination.PlanPageRange(total, maxPages)
//	pages, err := fetcher.FetchAll(ctx, token, n)
//
// The batch fetcher:
//   - Requests the script descriptor to determine the declared page count
//   - Applies an optional cap (nil means no cap, values <= 0 are rejected)
//   - Spawns a worker pool (default 20 workers, 1 for sequential fetching)
//   - Requests every index in [1, n] exactly once, without retries
//   - Accumulates sub-pages regardless of completion order
//   - Reports progress to an Observer after each index settles
//   - Fails with a PartialFetchError when any index failed
package pagination

package pagination

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/script-reader-dl/pkg/document"
)

var (
	// ErrInvalidArgument is returned for a page cap or range that cannot be planned.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPartialFetch is matched by PartialFetchError.
	ErrPartialFetch = errors.New("partial fetch failure")
)

// PartialFetchError reports a FetchAll run in which at least one page index failed.
type PartialFetchError struct {
	// Pages holds the sub-pages of the indices that succeeded. It is frozen.
	Pages *document.PageSet

	// Succeeded and Failed list page indices in ascending order.
	Succeeded []int
	Failed    []int

	// Errs maps each failed index to its error.
	Errs map[int]error
}

// Error implements the error interface.
func (e *PartialFetchError) Error() string {
	total := len(e.Succeeded) + len(e.Failed)
	if len(e.Failed) == 0 {
		return fmt.Sprintf("%s: %d/%d pages fetched", ErrPartialFetch, len(e.Succeeded), total)
	}
	first := e.Failed[0]
	return fmt.Sprintf("%s: %d/%d pages fetched, failed pages %v (page %d: %v)",
		ErrPartialFetch, len(e.Succeeded), total, e.Failed, first, e.Errs[first])
}

// Is reports whether target is ErrPartialFetch.
func (e *PartialFetchError) Is(target error) bool {
	return target == ErrPartialFetch
}

// Unwrap returns the per-page errors in ascending page order.
func (e *PartialFetchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, idx := range e.Failed {
		if err := e.Errs[idx]; err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

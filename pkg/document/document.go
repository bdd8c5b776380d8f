// Package document holds the data model shared by the fetch and assembly stages:
// sub-pages returned by the remote reader, the script descriptor, and the page set
// accumulated while a script is downloaded.
package document

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrDuplicatePage is returned when a sub-page number is added to a PageSet twice.
	ErrDuplicatePage = errors.New("duplicate page number")

	// ErrFrozen is returned when adding to a PageSet after the fetch phase ended.
	ErrFrozen = errors.New("page set is frozen")
)

// SubPage is one image tile returned for a requested page index.
type SubPage struct {
	// PageNum is the document page number reported by the remote service.
	// Numbers are not necessarily contiguous or returned in order.
	PageNum int

	// EncodedFile is the base64 encoded image as delivered on the wire.
	EncodedFile string
}

// Descriptor is the result of the first request against a script.
type Descriptor struct {
	// ScriptID identifies the script on the remote service.
	ScriptID int

	// Name is the production or document name.
	Name string

	// PageCount is the total page count declared by the service.
	PageCount int
}

// PageSet accumulates sub-pages across a whole document.
//
// Add is safe for concurrent use. Once Freeze is called the set no longer
// accepts pages and may be read without synchronisation by the assembler.
type PageSet struct {
	mu     sync.Mutex
	pages  map[int]SubPage
	frozen bool
}

// NewPageSet creates an empty page set.
func NewPageSet() *PageSet {
	return &PageSet{pages: make(map[int]SubPage)}
}

// Add stores sub-pages in the set. All pages of one call are added atomically:
// if any page number already exists, nothing is added and ErrDuplicatePage is returned.
func (s *PageSet) Add(pages ...SubPage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return ErrFrozen
	}

	seen := make(map[int]struct{}, len(pages))
	for _, p := range pages {
		if _, ok := s.pages[p.PageNum]; ok {
			return fmt.Errorf("%w: %d", ErrDuplicatePage, p.PageNum)
		}
		if _, ok := seen[p.PageNum]; ok {
			return fmt.Errorf("%w: %d", ErrDuplicatePage, p.PageNum)
		}
		seen[p.PageNum] = struct{}{}
	}

	for _, p := range pages {
		s.pages[p.PageNum] = p
	}
	return nil
}

// Freeze marks the end of the fetch phase.
func (s *PageSet) Freeze() {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (s *PageSet) Frozen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frozen
}

// Len returns the number of distinct sub-pages.
func (s *PageSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

// Get returns the sub-page with the given number.
func (s *PageSet) Get(pageNum int) (SubPage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[pageNum]
	return p, ok
}

// Sorted returns the sub-pages in ascending page-number order.
func (s *PageSet) Sorted() []SubPage {
	s.mu.Lock()
	out := make([]SubPage, 0, len(s.pages))
	for _, p := range s.pages {
		out = append(out, p)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].PageNum < out[j].PageNum
	})
	return out
}

// PageNumbers returns the stored page numbers in ascending order.
func (s *PageSet) PageNumbers() []int {
	sorted := s.Sorted()
	nums := make([]int, len(sorted))
	for i, p := range sorted {
		nums[i] = p.PageNum
	}
	return nums
}

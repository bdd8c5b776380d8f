// Package testutil provides testing utilities for the script reader client.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Paths served by the mock, matching the real reader.
const (
	PathLoadPageData   = "/BrowseScript.aspx/LoadPageData"
	PathLoadSinglePage = "/BrowseScript.aspx/LoadSinglePage"
)

// Page is one sub-page as served on the wire.
type Page struct {
	PageNum     int    `json:"PageNum"`
	EncodedFile string `json:"EncodedFile"`
}

// MockReader is a configurable mock of the reader's page methods.
//
// By default every page index i in [1, declared count] answers with a single
// sub-page numbered i holding a small PNG.
type MockReader struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	scriptName    string
	declaredCount int
	pages         map[int][]Page
	failures      map[int]int
	delay         time.Duration
	pageDelays    map[int]time.Duration

	// Tracking
	RequestCount int
	PageRequests map[int]int
	LastToken    string
	inFlight     int
	MaxInFlight  int
}

// NewMockReader creates a new mock reader server.
func NewMockReader(declaredCount int) *MockReader {
	mock := &MockReader{
		handlers:      make(map[string]func(w http.ResponseWriter, r *http.Request)),
		scriptName:    "Mock Production",
		declaredCount: declaredCount,
		pages:         make(map[int][]Page),
		failures:      make(map[int]int),
		pageDelays:    make(map[int]time.Duration),
		PageRequests:  make(map[int]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		switch r.URL.Path {
		case PathLoadPageData:
			mock.loadPageData(w, r)
		case PathLoadSinglePage:
			mock.loadSinglePage(w, r)
		default:
			http.NotFound(w, r)
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockReader) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockReader) Close() {
	m.server.Close()
}

// SetHandler overrides the handler for a specific path.
func (m *MockReader) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetScriptName sets the name reported by the first-page request.
func (m *MockReader) SetScriptName(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scriptName = name
}

// SetPages sets the sub-pages answered for a page index. No pages answers
// with an empty list.
func (m *MockReader) SetPages(index int, pages ...Page) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pages == nil {
		pages = []Page{}
	}
	m.pages[index] = pages
}

// FailPage makes requests for a page index answer with the given status code.
func (m *MockReader) FailPage(index int, statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[index] = statusCode
}

// SetDelay delays every page response.
func (m *MockReader) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SetPageDelay delays the response for one page index, overriding SetDelay.
func (m *MockReader) SetPageDelay(index int, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageDelays[index] = d
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockReader) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPageRequests returns how often each page index was requested.
func (m *MockReader) GetPageRequests() map[int]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int]int, len(m.PageRequests))
	for k, v := range m.PageRequests {
		out[k] = v
	}
	return out
}

// GetMaxInFlight returns the highest number of concurrent page requests seen.
func (m *MockReader) GetMaxInFlight() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.MaxInFlight
}

// GetLastToken returns the session token of the last request.
func (m *MockReader) GetLastToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastToken
}

func (m *MockReader) pagesFor(index int) []Page {
	if pages, ok := m.pages[index]; ok {
		return pages
	}
	return []Page{{PageNum: index, EncodedFile: EncodedPNG(40, 60)}}
}

func (m *MockReader) loadPageData(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionVars    string `json:"sessionVars"`
		NumPagesToLoad int    `json:"numPagesToLoad"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.LastToken = req.SessionVars
	count := m.declaredCount
	name := m.scriptName
	var first []Page
	if count > 0 {
		first = m.pagesFor(1)
	}
	m.mu.Unlock()

	writeJSON(w, map[string]any{
		"d": map[string]any{
			"Pages": first,
			"Scripts": []map[string]any{
				{"Id": 42, "PageCount": count, "Name": name},
			},
		},
	})
}

func (m *MockReader) loadSinglePage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionVars string `json:"sessionVars"`
		PageNum     int    `json:"pageNum"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.LastToken = req.SessionVars
	m.PageRequests[req.PageNum]++
	m.inFlight++
	if m.inFlight > m.MaxInFlight {
		m.MaxInFlight = m.inFlight
	}
	delay := m.delay
	if d, ok := m.pageDelays[req.PageNum]; ok {
		delay = d
	}
	status, failing := m.failures[req.PageNum]
	pages := m.pagesFor(req.PageNum)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}

	if failing {
		http.Error(w, `{"Message":"page failed"}`, status)
		return
	}

	writeJSON(w, map[string]any{
		"d": map[string]any{"Pages": pages},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

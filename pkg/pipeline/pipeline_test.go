package pipeline

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/Sternrassler/script-reader-dl/internal/testutil"
	"github.com/Sternrassler/script-reader-dl/pkg/pagination"
	"github.com/Sternrassler/script-reader-dl/pkg/reader"
	"github.com/Sternrassler/script-reader-dl/pkg/session"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

func newClient(t *testing.T, mock *testutil.MockReader) *reader.Client {
	t.Helper()
	cfg := reader.DefaultConfig()
	cfg.BaseURL = mock.URL()
	client, err := reader.New(cfg)
	if err != nil {
		t.Fatalf("reader.New failed: %v", err)
	}
	return client
}

func intPtr(v int) *int { return &v }

func TestPipeline_Run(t *testing.T) {
	mock := testutil.NewMockReader(5)
	defer mock.Close()
	mock.SetScriptName("Into the Woods")

	out := filepath.Join(t.TempDir(), "script.pdf")
	p := New(session.Static("token-1"), newClient(t, mock), DefaultConfig(), nil)

	result, err := p.Run(context.Background(), Options{OutputPath: out})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.ScriptName != "Into the Woods" {
		t.Errorf("ScriptName = %q", result.ScriptName)
	}
	if result.ScriptID != 42 {
		t.Errorf("ScriptID = %d, want 42", result.ScriptID)
	}
	if result.DeclaredPages != 5 || result.FetchedPages != 5 || result.PDFPages != 5 {
		t.Errorf("pages declared/fetched/pdf = %d/%d/%d, want 5/5/5",
			result.DeclaredPages, result.FetchedPages, result.PDFPages)
	}

	n, err := api.PageCountFile(out)
	if err != nil {
		t.Fatalf("PageCountFile failed: %v", err)
	}
	if n != 5 {
		t.Errorf("PDF has %d pages, want 5", n)
	}
	if mock.GetLastToken() != "token-1" {
		t.Errorf("token sent = %q, want token-1", mock.GetLastToken())
	}
}

func TestPipeline_Run_Cap(t *testing.T) {
	tests := []struct {
		name string
		max  *int
		want int
	}{
		{name: "capped", max: intPtr(10), want: 10},
		{name: "uncapped", max: nil, want: 37},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockReader(37)
			defer mock.Close()

			out := filepath.Join(t.TempDir(), "script.pdf")
			p := New(session.Static("t"), newClient(t, mock), DefaultConfig(), nil)

			result, err := p.Run(context.Background(), Options{OutputPath: out, MaxPages: tt.max})
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}

			if got := len(mock.GetPageRequests()); got != tt.want {
				t.Errorf("requested %d page indices, want %d", got, tt.want)
			}
			if result.PDFPages != tt.want {
				t.Errorf("PDFPages = %d, want %d", result.PDFPages, tt.want)
			}
			if n, err := api.PageCountFile(out); err != nil || n != tt.want {
				t.Errorf("PageCountFile = %d, %v; want %d", n, err, tt.want)
			}
		})
	}
}

func TestPipeline_Run_PartialFetchWritesNothing(t *testing.T) {
	mock := testutil.NewMockReader(20)
	defer mock.Close()
	mock.FailPage(8, http.StatusInternalServerError)

	out := filepath.Join(t.TempDir(), "script.pdf")
	p := New(session.Static("t"), newClient(t, mock), DefaultConfig(), nil)

	_, err := p.Run(context.Background(), Options{OutputPath: out})
	if !errors.Is(err, pagination.ErrPartialFetch) {
		t.Fatalf("expected ErrPartialFetch, got %v", err)
	}
	if !errors.Is(err, reader.ErrRemoteUnavailable) {
		t.Errorf("expected ErrRemoteUnavailable in chain, got %v", err)
	}

	var partial *pagination.PartialFetchError
	if !errors.As(err, &partial) {
		t.Fatalf("expected *PartialFetchError, got %T", err)
	}
	if len(partial.Succeeded) != 19 || len(partial.Failed) != 1 || partial.Failed[0] != 8 {
		t.Errorf("succeeded=%d failed=%v, want 19 and [8]", len(partial.Succeeded), partial.Failed)
	}

	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("no PDF may be written after a partial fetch, stat err = %v", err)
	}
}

func TestPipeline_Run_InvalidCapSkipsLogin(t *testing.T) {
	mock := testutil.NewMockReader(3)
	defer mock.Close()

	var calls atomic.Int32
	provider := session.ProviderFunc(func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "t", nil
	})

	p := New(provider, newClient(t, mock), DefaultConfig(), nil)
	_, err := p.Run(context.Background(), Options{
		OutputPath: filepath.Join(t.TempDir(), "script.pdf"),
		MaxPages:   intPtr(0),
	})

	if !errors.Is(err, pagination.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("session provider called %d times, want 0", calls.Load())
	}
	if mock.GetRequestCount() != 0 {
		t.Errorf("reader received %d requests, want 0", mock.GetRequestCount())
	}
}

func TestPipeline_Run_Errors(t *testing.T) {
	mock := testutil.NewMockReader(3)
	defer mock.Close()

	tokenErr := errors.New("login rejected")

	tests := []struct {
		name     string
		provider session.Provider
		opts     Options
		wantErr  error
	}{
		{
			name:     "no output",
			provider: session.Static("t"),
			opts:     Options{},
			wantErr:  ErrNoOutput,
		},
		{
			name:     "empty token",
			provider: session.Static(""),
			opts:     Options{OutputPath: filepath.Join(t.TempDir(), "a.pdf")},
			wantErr:  session.ErrEmptyToken,
		},
		{
			name: "provider failure",
			provider: session.ProviderFunc(func(ctx context.Context) (string, error) {
				return "", tokenErr
			}),
			opts:    Options{OutputPath: filepath.Join(t.TempDir(), "b.pdf")},
			wantErr: tokenErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.provider, newClient(t, mock), DefaultConfig(), nil)
			if _, err := p.Run(context.Background(), tt.opts); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPipeline_Run_ZeroPages(t *testing.T) {
	mock := testutil.NewMockReader(0)
	defer mock.Close()

	out := filepath.Join(t.TempDir(), "empty.pdf")
	p := New(session.Static("t"), newClient(t, mock), DefaultConfig(), nil)

	result, err := p.Run(context.Background(), Options{OutputPath: out})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.PDFPages != 0 {
		t.Errorf("PDFPages = %d, want 0", result.PDFPages)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("expected an output file: %v", err)
	}
}

func TestPipeline_Run_DumpDir(t *testing.T) {
	mock := testutil.NewMockReader(2)
	defer mock.Close()
	mock.SetPages(2, testutil.Page{PageNum: 2, EncodedFile: testutil.EncodedJPEG(20, 20)},
		testutil.Page{PageNum: 3, EncodedFile: testutil.EncodedPNG(20, 20)})

	dir := t.TempDir()
	dump := filepath.Join(dir, "pages")
	p := New(session.Static("t"), newClient(t, mock), DefaultConfig(), nil)

	result, err := p.Run(context.Background(), Options{
		OutputPath: filepath.Join(dir, "script.pdf"),
		DumpDir:    dump,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{"page1.png", "page2.jpg", "page3.png"}
	if len(result.ImagePaths) != len(want) {
		t.Fatalf("ImagePaths = %v, want %v", result.ImagePaths, want)
	}
	for i, name := range want {
		if result.ImagePaths[i] != filepath.Join(dump, name) {
			t.Errorf("ImagePaths[%d] = %q, want %q", i, result.ImagePaths[i], filepath.Join(dump, name))
		}
	}
	if result.PDFPages != 3 {
		t.Errorf("PDFPages = %d, want 3", result.PDFPages)
	}
}

type recordingObserver struct {
	completed atomic.Int32
	written   atomic.Int32
}

func (r *recordingObserver) PageCompleted(int, int) { r.completed.Add(1) }
func (r *recordingObserver) PageWritten(int, int)   { r.written.Add(1) }

func TestPipeline_Run_Observer(t *testing.T) {
	mock := testutil.NewMockReader(6)
	defer mock.Close()
	mock.SetPages(4, testutil.Page{PageNum: 4, EncodedFile: testutil.EncodedPNG(10, 10)},
		testutil.Page{PageNum: 40, EncodedFile: testutil.EncodedPNG(10, 10)})

	obs := &recordingObserver{}
	p := New(session.Static("t"), newClient(t, mock), DefaultConfig(), obs)

	if _, err := p.Run(context.Background(), Options{OutputPath: filepath.Join(t.TempDir(), "s.pdf")}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := obs.completed.Load(); got != 6 {
		t.Errorf("PageCompleted called %d times, want 6", got)
	}
	if got := obs.written.Load(); got != 7 {
		t.Errorf("PageWritten called %d times, want 7", got)
	}
}

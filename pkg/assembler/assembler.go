// Package assembler turns a downloaded page set into a PDF with one page per
// image, in ascending page-number order.
package assembler

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/Sternrassler/script-reader-dl/pkg/document"
	"github.com/Sternrassler/script-reader-dl/pkg/logging"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

var (
	pdfPagesWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriptdl_pdf_pages_written_total",
		Help: "Total PDF pages emitted",
	})

	assemblyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scriptdl_assembly_duration_seconds",
		Help:    "Time spent decoding and writing a PDF",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})
)

// Image is a decoded sub-page ready to be placed on a PDF page.
type Image struct {
	PageNum int
	// Data holds the raw encoded image bytes.
	Data []byte
	// Format is the name reported by image.Decode ("png", "jpeg", "webp", "tiff").
	Format string
	Width  int
	Height int
}

// Config holds assembler configuration.
type Config struct {
	// DecodeWorkers bounds concurrent image decoding. Zero uses GOMAXPROCS.
	DecodeWorkers int
}

// DefaultConfig returns the default assembler configuration.
func DefaultConfig() Config {
	return Config{DecodeWorkers: runtime.GOMAXPROCS(0)}
}

// Observer receives progress as pages are emitted.
type Observer interface {
	PageWritten(written, total int)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(written, total int)

// PageWritten calls f.
func (f ObserverFunc) PageWritten(written, total int) { f(written, total) }

type nopObserver struct{}

func (nopObserver) PageWritten(int, int) {}

// Assembler writes page sets as PDF files.
type Assembler struct {
	config   Config
	observer Observer
	pdfConf  *model.Configuration
	logger   zerolog.Logger
}

// New creates an assembler. A nil observer discards progress.
func New(config Config, observer Observer) *Assembler {
	if config.DecodeWorkers <= 0 {
		config.DecodeWorkers = DefaultConfig().DecodeWorkers
	}
	if observer == nil {
		observer = nopObserver{}
	}

	return &Assembler{
		config:   config,
		observer: observer,
		pdfConf:  newPDFConfiguration(),
		logger:   logging.NewLogger(logging.ComponentAssembler),
	}
}

// Assemble decodes every sub-page of pages and writes them to outputPath as a
// PDF, sorted by page number. The file is written to a temporary sibling and
// renamed into place, so a failed run leaves no output behind.
func (a *Assembler) Assemble(ctx context.Context, pages *document.PageSet, outputPath string) error {
	start := time.Now()
	defer func() {
		assemblyDuration.Observe(time.Since(start).Seconds())
	}()

	images, err := a.Decode(ctx, pages)
	if err != nil {
		return err
	}

	dir := filepath.Dir(outputPath)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(outputPath)+".*.tmp")
	if err != nil {
		return &OutputWriteError{Path: outputPath, Err: err}
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	doc := NewDocument(a.pdfConf)
	for i, img := range images {
		if err := doc.AddPage(img); err != nil {
			return err
		}
		pdfPagesWrittenTotal.Inc()
		a.observer.PageWritten(i+1, len(images))

		a.logger.Debug().
			Int("page", img.PageNum).
			Int("width", img.Width).
			Int("height", img.Height).
			Str("format", img.Format).
			Msg("Page added")
	}

	if err := doc.Finalize(tmp); err != nil {
		return &OutputWriteError{Path: outputPath, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &OutputWriteError{Path: outputPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &OutputWriteError{Path: outputPath, Err: err}
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		os.Remove(tmpPath)
		return &OutputWriteError{Path: outputPath, Err: err}
	}
	committed = true

	a.logger.Info().
		Str("output", outputPath).
		Int("pages", len(images)).
		Dur("duration", time.Since(start)).
		Msg("PDF written")

	return nil
}

// Decode decodes every sub-page concurrently and returns the images sorted by
// page number. The first undecodable sub-page aborts with an *ImageDecodeError.
func (a *Assembler) Decode(ctx context.Context, pages *document.PageSet) ([]Image, error) {
	if pages == nil {
		return nil, nil
	}

	sorted := pages.Sorted()
	images := make([]Image, len(sorted))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.DecodeWorkers)

	for i, sp := range sorted {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := decodeSubPage(sp)
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

// WriteImages writes every sub-page as page<N>.<ext> into dir and returns the
// written paths in page order.
func (a *Assembler) WriteImages(ctx context.Context, pages *document.PageSet, dir string) ([]string, error) {
	images, err := a.Decode(ctx, pages)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &OutputWriteError{Path: dir, Err: err}
	}

	paths := make([]string, 0, len(images))
	for _, img := range images {
		path := filepath.Join(dir, fmt.Sprintf("page%d.%s", img.PageNum, extension(img.Format)))
		if err := os.WriteFile(path, img.Data, 0o644); err != nil {
			return nil, &OutputWriteError{Path: path, Err: err}
		}
		paths = append(paths, path)
	}

	a.logger.Info().
		Str("output", dir).
		Int("pages", len(paths)).
		Msg("Page images written")

	return paths, nil
}

func decodeSubPage(sp document.SubPage) (Image, error) {
	data, err := decodeBase64(sp.EncodedFile)
	if err != nil {
		return Image{}, &ImageDecodeError{PageNum: sp.PageNum, Err: err}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, &ImageDecodeError{PageNum: sp.PageNum, Err: err}
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return Image{}, &ImageDecodeError{PageNum: sp.PageNum, Err: fmt.Errorf("empty image bounds %v", bounds)}
	}

	return Image{
		PageNum: sp.PageNum,
		Data:    data,
		Format:  format,
		Width:   bounds.Dx(),
		Height:  bounds.Dy(),
	}, nil
}

// decodeBase64 accepts padded or unpadded standard base64 and ignores line breaks.
func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return nil, fmt.Errorf("no image data")
	}
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

func extension(format string) string {
	switch format {
	case "jpeg":
		return "jpg"
	case "tiff":
		return "tif"
	case "":
		return "img"
	default:
		return format
	}
}

// Package pipeline runs a complete download: obtain a session token, discover
// the script's page count, fetch every page and assemble the PDF.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/script-reader-dl/pkg/assembler"
	"github.com/Sternrassler/script-reader-dl/pkg/logging"
	"github.com/Sternrassler/script-reader-dl/pkg/pagination"
	"github.com/Sternrassler/script-reader-dl/pkg/session"
	"github.com/rs/zerolog"
)

// ErrNoOutput is returned when Options.OutputPath is empty.
var ErrNoOutput = errors.New("output path is required")

// Observer receives progress from both the fetch and the assembly phase.
type Observer interface {
	pagination.Observer
	assembler.Observer
}

// NopObserver discards progress.
type NopObserver struct{}

// PageCompleted does nothing.
func (NopObserver) PageCompleted(int, int) {}

// PageWritten does nothing.
func (NopObserver) PageWritten(int, int) {}

// Config bundles the configuration of the pipeline stages.
type Config struct {
	Pagination pagination.Config
	Assembler  assembler.Config
}

// DefaultConfig returns the default stage configuration.
func DefaultConfig() Config {
	return Config{
		Pagination: pagination.DefaultConfig(),
		Assembler:  assembler.DefaultConfig(),
	}
}

// Options describe one run.
type Options struct {
	// OutputPath is the PDF to write.
	OutputPath string
	// MaxPages caps the number of page indices fetched. Nil means no cap.
	MaxPages *int
	// DumpDir, if set, also receives every sub-page image as page<N>.<ext>.
	DumpDir string
}

// Result summarises a successful run.
type Result struct {
	ScriptID      int
	ScriptName    string
	DeclaredPages int
	FetchedPages  int
	PDFPages      int
	OutputPath    string
	ImagePaths    []string
	Duration      time.Duration
}

// Pipeline sequences session, pagination and assembly.
type Pipeline struct {
	session   session.Provider
	fetcher   *pagination.BatchFetcher
	assembler *assembler.Assembler
	logger    zerolog.Logger
}

// New creates a pipeline. A nil observer discards progress.
func New(provider session.Provider, fetcher pagination.PageFetcher, config Config, observer Observer) *Pipeline {
	if observer == nil {
		observer = NopObserver{}
	}

	return &Pipeline{
		session:   provider,
		fetcher:   pagination.NewBatchFetcher(fetcher, config.Pagination, observer),
		assembler: assembler.New(config.Assembler, observer),
		logger:    logging.NewLogger(logging.ComponentPipeline),
	}
}

// Run performs one download. The PDF is only assembled after every planned
// page index was fetched; a partial fetch returns the *pagination.PartialFetchError
// and writes nothing.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()

	if opts.OutputPath == "" {
		return nil, ErrNoOutput
	}
	// Reject a bad cap before logging in.
	if _, err := pagination.PlanPageRange(0, opts.MaxPages); err != nil {
		return nil, err
	}

	token, err := p.session.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtain session token: %w", err)
	}

	desc, err := p.fetcher.Discover(ctx, token)
	if err != nil {
		return nil, err
	}

	pageRange, err := pagination.PlanPageRange(desc.PageCount, opts.MaxPages)
	if err != nil {
		return nil, err
	}

	pages, err := p.fetcher.FetchAll(ctx, token, pageRange)
	if err != nil {
		p.logger.Error().Err(err).Msg("Fetch aborted, no PDF written")
		return nil, err
	}

	result := &Result{
		ScriptID:      desc.ScriptID,
		ScriptName:    desc.Name,
		DeclaredPages: desc.PageCount,
		FetchedPages:  pageRange,
		PDFPages:      pages.Len(),
		OutputPath:    opts.OutputPath,
	}

	if opts.DumpDir != "" {
		paths, err := p.assembler.WriteImages(ctx, pages, opts.DumpDir)
		if err != nil {
			return nil, err
		}
		result.ImagePaths = paths
	}

	if err := p.assembler.Assemble(ctx, pages, opts.OutputPath); err != nil {
		p.logger.Error().Err(err).Str("output", opts.OutputPath).Msg("Assembly failed")
		return nil, err
	}

	result.Duration = time.Since(start)

	p.logger.Info().
		Str("name", result.ScriptName).
		Int("pages", result.PDFPages).
		Str("output", result.OutputPath).
		Dur("duration", result.Duration).
		Msg("Download complete")

	return result, nil
}

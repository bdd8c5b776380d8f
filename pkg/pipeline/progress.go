package pipeline

import (
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// ProgressBar renders fetch and assembly progress as terminal bars, one per phase.
type ProgressBar struct {
	mu    sync.Mutex
	out   io.Writer
	bar   *progressbar.ProgressBar
	phase string
}

// NewProgressBar returns a progress observer writing to out.
func NewProgressBar(out io.Writer) *ProgressBar {
	return &ProgressBar{out: out}
}

// PageCompleted advances the download bar.
func (p *ProgressBar) PageCompleted(completed, total int) {
	p.update("Downloading pages", completed, total)
}

// PageWritten advances the PDF bar.
func (p *ProgressBar) PageWritten(written, total int) {
	p.update("Writing PDF", written, total)
}

// Close finishes the current bar.
func (p *ProgressBar) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil {
		return nil
	}
	err := p.bar.Finish()
	p.bar = nil
	p.phase = ""
	return err
}

func (p *ProgressBar) update(phase string, n, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil || p.phase != phase {
		if p.bar != nil {
			_ = p.bar.Finish()
		}
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetDescription(phase),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionOnCompletion(func() {
				_, _ = io.WriteString(p.out, "\n")
			}),
		)
		p.phase = phase
	}

	_ = p.bar.Set(n)
}

// Value reports the current phase and position. It is used by tests.
func (p *ProgressBar) Value() (phase string, n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil {
		return "", 0
	}
	return p.phase, int64(p.bar.State().CurrentNum)
}

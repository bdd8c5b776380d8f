package assembler

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// State is the lifecycle state of a Document.
type State int

const (
	// StateEmpty is a document with no pages yet.
	StateEmpty State = iota
	// StateOpen is a document that has received at least one page.
	StateOpen
	// StateFinalized is a document that has been written out. It accepts no further writes.
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateOpen:
		return "open"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Document collects page images in emission order and writes them as a PDF
// with one page per image, each page sized to its image.
//
// A Document is not safe for concurrent use.
type Document struct {
	state  State
	images []Image
	conf   *model.Configuration
}

// NewDocument returns an empty document. A nil conf uses pdfcpu's defaults
// with relaxed validation.
func NewDocument(conf *model.Configuration) *Document {
	if conf == nil {
		conf = newPDFConfiguration()
	}
	return &Document{conf: conf}
}

// State returns the current lifecycle state.
func (d *Document) State() State {
	return d.state
}

// Len returns the number of pages added so far.
func (d *Document) Len() int {
	return len(d.images)
}

// AddPage appends img as the next page.
func (d *Document) AddPage(img Image) error {
	if d.state == StateFinalized {
		return ErrFinalized
	}
	d.images = append(d.images, img)
	d.state = StateOpen
	return nil
}

// Finalize writes the document to w. It runs at most once; the document is
// finalized afterwards even if writing failed.
func (d *Document) Finalize(w io.Writer) error {
	if d.state == StateFinalized {
		return ErrFinalized
	}
	d.state = StateFinalized

	if len(d.images) == 0 {
		return d.writeEmptyPDF(w)
	}

	readers := make([]io.Reader, len(d.images))
	for i, img := range d.images {
		readers[i] = bytes.NewReader(img.Data)
	}

	// A nil import config places each image full-page at its own size.
	if err := api.ImportImages(nil, w, readers, nil, d.conf); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func newPDFConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// writeEmptyPDF writes a document whose page tree has no kids.
func (d *Document) writeEmptyPDF(w io.Writer) error {
	ctx, err := pdfcpu.CreateContextWithXRefTable(d.conf, types.PaperSize["A4"])
	if err != nil {
		return fmt.Errorf("create pdf: %w", err)
	}
	if err := api.WriteContext(ctx, w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

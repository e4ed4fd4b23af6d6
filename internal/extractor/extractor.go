// Package extractor turns uploaded document bytes into clean text.
//
// Each file type maps to an ordered chain of independent strategies. The
// first strategy whose cleaned output passes the acceptance test wins.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"docrag-go/internal/model"
	"docrag-go/internal/textclean"
	"docrag-go/pkg/log"
)

const (
	// DefaultMaxPDFPages caps per-page rendering.
	DefaultMaxPDFPages = 50
	// DefaultMinExtractedLength is the cleaned length a PDF strategy must exceed.
	DefaultMinExtractedLength = 100
)

// DocumentParser is a remote parsing service such as Apache Tika.
type DocumentParser interface {
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
}

// Result is the cleaned text together with the strategy that produced it.
type Result struct {
	Text   string
	Method string
}

// Extractor dispatches on file type. It holds no per-call state.
type Extractor struct {
	parser        DocumentParser
	runner        CommandRunner
	pdftotextPath string
	maxPages      int
	minLength     int
	validator     textclean.Validator
	pdfChain      []Strategy
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithParser enables the remote parsing strategy for PDFs.
func WithParser(p DocumentParser) Option {
	return func(e *Extractor) { e.parser = p }
}

// WithRunner replaces the command runner used for pdftotext.
func WithRunner(r CommandRunner) Option {
	return func(e *Extractor) {
		if r != nil {
			e.runner = r
		}
	}
}

// WithPDFToTextPath sets the pdftotext binary.
func WithPDFToTextPath(path string) Option {
	return func(e *Extractor) {
		if path != "" {
			e.pdftotextPath = path
		}
	}
}

// WithMaxPages caps the per-page renderer.
func WithMaxPages(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxPages = n
		}
	}
}

// WithMinExtractedLength sets the acceptance length for PDF strategies.
func WithMinExtractedLength(n int) Option {
	return func(e *Extractor) {
		if n >= 0 {
			e.minLength = n
		}
	}
}

// WithValidator replaces the storage predicate used by the acceptance test.
func WithValidator(v textclean.Validator) Option {
	return func(e *Extractor) { e.validator = v }
}

// WithPDFStrategies replaces the default PDF chain.
func WithPDFStrategies(s ...Strategy) Option {
	return func(e *Extractor) { e.pdfChain = s }
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		runner:        ExecRunner{},
		pdftotextPath: "pdftotext",
		maxPages:      DefaultMaxPDFPages,
		minLength:     DefaultMinExtractedLength,
		validator:     textclean.NewValidator(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pdfChain == nil {
		e.pdfChain = e.defaultPDFChain()
	}
	return e
}

// Extract returns the cleaned text of data. Failures wrap model.ErrExtractionFailed.
func (e *Extractor) Extract(ctx context.Context, data []byte, fileName string, fileType model.FileType) (Result, error) {
	if len(data) == 0 {
		return Result{}, fmt.Errorf("%w: %s is empty", model.ErrExtractionFailed, fileName)
	}
	switch fileType {
	case model.FileTypeTXT, model.FileTypeMD, model.FileTypeText:
		return Result{Text: textclean.Clean(decodeText(data)), Method: "text"}, nil
	case model.FileTypeDOCX, model.FileTypeDOC:
		return e.extractWord(ctx, data, fileName)
	case model.FileTypePDF:
		return e.extractPDF(ctx, data, fileName)
	default:
		return Result{}, fmt.Errorf("%w: %q", model.ErrUnsupportedFileType, fileType)
	}
}

// Accept is the acceptance test applied to cleaned PDF output.
func (e *Extractor) Accept(text string) bool {
	return utf8.RuneCountInString(text) > e.minLength && e.validator.ValidForStorage(text)
}

func (e *Extractor) extractPDF(ctx context.Context, data []byte, fileName string) (Result, error) {
	text, method, err := FirstSuccess(ctx, e.Accept, tries(e.pdfChain, data, textclean.Clean)...)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		log.Warnf("[Extractor] all PDF strategies failed for %s: %v", fileName, err)
		return Result{}, fmt.Errorf("%w: %s: likely encrypted, image-only, or corrupted", model.ErrExtractionFailed, fileName)
	}
	log.Infof("[Extractor] %s extracted with %s, %d characters", fileName, method, utf8.RuneCountInString(text))
	return Result{Text: text, Method: method}, nil
}

func (e *Extractor) extractWord(ctx context.Context, data []byte, fileName string) (Result, error) {
	accept := func(s string) bool { return s != "" && e.validator.ValidForStorage(s) }
	chain := []Strategy{
		StrategyFunc{Label: "docx-xml", Fn: extractDOCX},
		StrategyFunc{Label: "raw-decode", Fn: func(_ context.Context, b []byte) (string, error) {
			return decodeText(b), nil
		}},
	}
	text, method, err := FirstSuccess(ctx, accept, tries(chain, data, textclean.Clean)...)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		// The raw decode always yields something; surface it so validation can report it.
		raw := textclean.Clean(decodeText(data))
		if raw == "" {
			return Result{}, fmt.Errorf("%w: %s: no readable text", model.ErrExtractionFailed, fileName)
		}
		return Result{Text: raw, Method: "raw-decode"}, nil
	}
	log.Infof("[Extractor] %s extracted with %s", fileName, method)
	return Result{Text: text, Method: method}, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText decodes UTF-8 or UTF-16 with a BOM, falling back to Windows-1252
// for bytes that are not valid UTF-8.
func decodeText(data []byte) string {
	switch {
	case bytes.HasPrefix(data, utf8BOM):
		data = data[len(utf8BOM):]
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}), bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		if out, _, err := transform.Bytes(dec, data); err == nil {
			return string(out)
		}
	}
	if utf8.Valid(data) {
		return string(data)
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return string(bytes.ToValidUTF8(data, nil))
	}
	return string(out)
}

package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	lpdf "github.com/ledongthuc/pdf"
	rscpdf "rsc.io/pdf"
)

var errNoText = errors.New("no text produced")

// defaultPDFChain is the ordered PDF strategy list. The remote parser is
// skipped when unconfigured.
func (e *Extractor) defaultPDFChain() []Strategy {
	var chain []Strategy
	if e.parser != nil {
		chain = append(chain, StrategyFunc{Label: "tika", Fn: e.parseRemote})
	}
	return append(chain,
		StrategyFunc{Label: "page-renderer", Fn: e.renderPages},
		StrategyFunc{Label: "pdftotext-layout", Fn: e.pdftotext("-layout", "-enc", "UTF-8")},
		StrategyFunc{Label: "pdftotext", Fn: e.pdftotext()},
		StrategyFunc{Label: "content-stream", Fn: readContentStreams},
		StrategyFunc{Label: "heuristic-strings", Fn: heuristicStrings},
		StrategyFunc{Label: "heuristic-runs", Fn: heuristicRuns},
	)
}

func (e *Extractor) parseRemote(ctx context.Context, data []byte) (string, error) {
	return e.parser.ExtractText(ctx, bytes.NewReader(data), "document.pdf")
}

// renderPages concatenates per-page plain text, up to maxPages pages.
func (e *Extractor) renderPages(ctx context.Context, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("page renderer panicked: %v", r)
		}
	}()

	reader, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	pages := reader.NumPage()
	if pages > e.maxPages {
		pages = e.maxPages
	}
	var b strings.Builder
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(content)
		b.WriteString("\n\n")
	}
	if b.Len() == 0 {
		return "", errNoText
	}
	return b.String(), nil
}

// pdftotext returns a strategy that shells out to poppler's pdftotext with
// the given flags, writing the document to a temporary file first.
func (e *Extractor) pdftotext(flags ...string) func(ctx context.Context, data []byte) (string, error) {
	return func(ctx context.Context, data []byte) (string, error) {
		tmp, err := os.CreateTemp("", "docrag-*.pdf")
		if err != nil {
			return "", fmt.Errorf("create temp file: %w", err)
		}
		defer os.Remove(tmp.Name())
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			return "", fmt.Errorf("write temp file: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return "", fmt.Errorf("close temp file: %w", err)
		}

		args := append(append([]string{}, flags...), tmp.Name(), "-")
		out, err := e.runner.Run(ctx, e.pdftotextPath, args...)
		if err != nil {
			return "", err
		}
		if len(bytes.TrimSpace(out)) == 0 {
			return "", errNoText
		}
		return string(out), nil
	}
}

// readContentStreams rebuilds text from positioned glyph runs, starting a new
// line when the baseline moves and a space when glyphs are visibly apart.
func readContentStreams(ctx context.Context, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("content stream reader panicked: %v", r)
		}
	}()

	reader, err := rscpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		var prev *rscpdf.Text
		for _, t := range page.Content().Text {
			t := t
			if prev != nil {
				switch {
				case math.Abs(t.Y-prev.Y) > t.FontSize*0.5:
					b.WriteByte('\n')
				case t.X-(prev.X+prev.W) > t.FontSize*0.15:
					b.WriteByte(' ')
				}
			}
			b.WriteString(t.S)
			prev = &t
		}
		b.WriteString("\n\n")
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", errNoText
	}
	return b.String(), nil
}

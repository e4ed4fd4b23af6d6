package extractor

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

var (
	// A literal string operand: ( ... ) with backslash escapes.
	pdfStringToken = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)`)
	printableRun   = regexp.MustCompile(`[\x20-\x7E]{10,}`)
	hasLetter      = regexp.MustCompile(`[A-Za-z]`)
	octalEscape    = regexp.MustCompile(`\\([0-7]{1,3})`)
)

// heuristicStrings collects the parenthesised string operands of a PDF's raw bytes.
func heuristicStrings(_ context.Context, data []byte) (string, error) {
	matches := pdfStringToken.FindAllSubmatch(data, -1)
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		s := unescapePDFString(string(m[1]))
		if hasLetter.MatchString(s) {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "", errNoText
	}
	return strings.Join(parts, " "), nil
}

// heuristicRuns keeps printable ASCII runs of ten or more bytes that contain a letter.
func heuristicRuns(_ context.Context, data []byte) (string, error) {
	var parts []string
	for _, run := range printableRun.FindAll(data, -1) {
		if hasLetter.Match(run) {
			parts = append(parts, string(run))
		}
	}
	if len(parts) == 0 {
		return "", errNoText
	}
	return strings.Join(parts, "\n"), nil
}

var pdfEscapes = strings.NewReplacer(
	`\n`, "\n",
	`\r`, "\r",
	`\t`, "\t",
	`\b`, "",
	`\f`, "",
	`\(`, "(",
	`\)`, ")",
	`\\`, `\`,
)

func unescapePDFString(s string) string {
	s = octalEscape.ReplaceAllStringFunc(s, func(m string) string {
		n, err := strconv.ParseUint(m[1:], 8, 8)
		if err != nil {
			return ""
		}
		return string(rune(n))
	})
	return pdfEscapes.Replace(s)
}

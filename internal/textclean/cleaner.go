// Package textclean normalizes extracted text and decides whether a blob is
// real content or extraction noise.
package textclean

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// URLPlaceholder replaces URLs longer than maxURLLength.
	URLPlaceholder = "[URL]"
	// EmailPlaceholder replaces email addresses.
	EmailPlaceholder = "[EMAIL]"

	maxURLLength = 40
	// Lines at or above this rune count must carry enough alphanumerics to survive.
	minFilteredLineLength = 3
	minLineAlnumRatio     = 0.30
)

var (
	// (cid:NN) glyph references and replacement characters left by PDF renderers.
	corruptionMarkers = regexp.MustCompile(`\(cid:\d+\)|\x{FFFD}+|\x{FFFE}|\x{FEFF}`)
	urlPattern        = regexp.MustCompile(`(?i)\b(?:https?|ftp)://[^\s<>"']+`)
	emailPattern      = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	letterThenDigit   = regexp.MustCompile(`(\p{L}{3,})(\d)`)
	digitThenLetter   = regexp.MustCompile(`(\d)(\p{L}{3,})`)
	horizontalSpace   = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)
	excessBlankLines  = regexp.MustCompile(`\n{3,}`)
)

// Clean normalizes raw extracted text. It is pure and idempotent on its own output.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = corruptionMarkers.ReplaceAllString(text, " ")
	text = stripControl(text)

	text = urlPattern.ReplaceAllStringFunc(text, func(u string) string {
		if utf8.RuneCountInString(u) > maxURLLength {
			return URLPlaceholder
		}
		return u
	})
	text = emailPattern.ReplaceAllString(text, EmailPlaceholder)

	text = letterThenDigit.ReplaceAllString(text, "$1 $2")
	text = digitThenLetter.ReplaceAllString(text, "$1 $2")

	text = stripNonPrintable(text)
	text = horizontalSpace.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if keepLine(line) {
			kept = append(kept, line)
		}
	}
	text = strings.Join(kept, "\n")
	text = excessBlankLines.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

// stripControl drops C0/C1 control characters except newline and tab.
func stripControl(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
}

func stripNonPrintable(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, text)
}

// keepLine reports whether a trimmed line survives the alphanumeric filter.
// Very short lines are always kept.
func keepLine(line string) bool {
	total := utf8.RuneCountInString(line)
	if total < minFilteredLineLength {
		return true
	}
	alnum := 0
	for _, r := range line {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	return float64(alnum)/float64(total) >= minLineAlnumRatio
}

package util

import "strings"

// Scraped chat text arrives with invisible junk: zero-width characters
// from the web client, NBSP variants, smart punctuation, and emoji
// variation selectors. Normalize maps all of that to a plain form so
// the extraction patterns only ever see one spelling of each thing.

var fragmentReplacer = strings.NewReplacer(
	"\r\n", "\n",
	"\r", "\n",
	"​", "", // zero width space
	"‌", "", // zero width non-joiner
	"‍", "", // zero width joiner
	"﻿", "", // BOM / zero width no-break
	"️", "", // emoji variation selector
	" ", " ", // no-break space
	" ", " ", // narrow no-break space
	" ", " ", // thin space
	"‘", "'",
	"’", "'",
	"“", `"`,
	"”", `"`,
)

// NormalizeFragment cleans one scraped text blob for extraction.
// It never changes visible content, only invisible or typographic
// variants of it.
func NormalizeFragment(text string) string {
	if text == "" {
		return ""
	}
	return fragmentReplacer.Replace(text)
}

// Excerpt returns at most max runes of s on a single line, for logs
// and diagnostic rows. Newlines collapse to spaces so one excerpt
// stays one field.
func Excerpt(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

package docindex

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const paragraphSeparator = "\n\n"

var blankLine = regexp.MustCompile(`\n[ \t]*\n`)

// ChunkText splits text into chunks of roughly chunkSize runes.
//
// Paragraphs (runs separated by blank lines) are accumulated greedily,
// joined by a blank line. When the next paragraph would push the buffer past
// chunkSize the buffer is emitted and the next one is seeded with the last
// overlap runes of the emitted chunk. Paragraphs longer than chunkSize are
// split into chunkSize pieces first. Whitespace-only input yields nil.
func ChunkText(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var chunks []string
	var buf strings.Builder
	bufLen := 0

	for _, para := range paragraphs(text, chunkSize) {
		paraLen := utf8.RuneCountInString(para)
		if bufLen > 0 && bufLen+len(paragraphSeparator)+paraLen > chunkSize {
			closed := buf.String()
			chunks = append(chunks, closed)

			buf.Reset()
			bufLen = 0
			if tail := lastRunes(closed, overlap); tail != "" {
				buf.WriteString(tail)
				buf.WriteString(paragraphSeparator)
				bufLen = utf8.RuneCountInString(tail) + len(paragraphSeparator)
			}
			buf.WriteString(para)
			bufLen += paraLen
			continue
		}
		if bufLen > 0 {
			buf.WriteString(paragraphSeparator)
			bufLen += len(paragraphSeparator)
		}
		buf.WriteString(para)
		bufLen += paraLen
	}
	if bufLen > 0 {
		chunks = append(chunks, buf.String())
	}
	return chunks
}

// paragraphs returns the trimmed, non-empty paragraphs of text, with any
// paragraph longer than max runes cut into max-rune pieces.
func paragraphs(text string, max int) []string {
	var out []string
	for _, p := range blankLine.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		for utf8.RuneCountInString(p) > max {
			cut := runeOffset(p, max)
			out = append(out, p[:cut])
			p = p[cut:]
		}
		out = append(out, p)
	}
	return out
}

// lastRunes returns the trailing n runes of s.
func lastRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := utf8.RuneCountInString(s)
	if count <= n {
		return s
	}
	return s[runeOffset(s, count-n):]
}

// runeOffset returns the byte offset of the n-th rune of s.
func runeOffset(s string, n int) int {
	i := 0
	for off := range s {
		if i == n {
			return off
		}
		i++
	}
	return len(s)
}

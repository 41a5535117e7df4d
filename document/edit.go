package document

import (
	"strings"
	"unicode/utf16"

	"github.com/corymhall/textlsp/lsp"
)

// applyChanges applies changes in order, each against the result of the
// previous one.
func applyChanges(text string, changes []Change) string {
	for _, c := range changes {
		if c.Range == nil {
			text = c.Text
			continue
		}
		start := offsetOf(text, c.Range.Start)
		end := offsetOf(text, c.Range.End)
		if start > end {
			start, end = end, start
		}
		text = text[:start] + c.Text + text[end:]
	}
	return text
}

// offsetOf converts pos to a byte offset into text. Lines end at "\n",
// "\r\n" or a lone "\r". Lines past the end clamp to the end of the text and
// characters past the end of a line clamp to the end of that line. Character
// counts UTF-16 code units; a position inside a surrogate pair rounds up to
// the end of the rune.
func offsetOf(text string, pos lsp.Position) int {
	start := 0
	for line := int32(0); line < pos.Line; line++ {
		_, next := lineEnd(text, start)
		if next < 0 {
			return len(text)
		}
		start = next
	}
	end, _ := lineEnd(text, start)

	var units int32
	for i, r := range text[start:end] {
		if units >= pos.Character {
			return start + i
		}
		n := utf16.RuneLen(r)
		if n < 0 {
			// invalid UTF-8 decodes to U+FFFD, a single unit
			n = 1
		}
		units += int32(n)
	}
	return end
}

// lineEnd returns the offset of the terminator of the line starting at start
// and the offset of the following line, or -1 for the last line.
func lineEnd(text string, start int) (end, next int) {
	i := strings.IndexAny(text[start:], "\r\n")
	if i < 0 {
		return len(text), -1
	}
	end = start + i
	if text[end] == '\r' && end+1 < len(text) && text[end+1] == '\n' {
		return end, end + 2
	}
	return end, end + 1
}

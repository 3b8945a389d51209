package conversation

import "strings"

// Role of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Wire format of the synthesis document.
const (
	FenceReason   = "```reason"
	FenceEnzyme   = "```enzyme"
	FenceClose    = "```"
	CalloutHeader = "> [!💭]+"
	QuotePrefix   = "> "
	HiddenOpen    = `<div style="display:none">`
	HiddenClose   = `</div>`
)

// Block is one complete turn block found in a document.
type Block struct {
	Role   Role
	Offset int    // byte offset of the opening line
	Body   string // request block interior, or callout lines without the quote prefix
}

// Segmenter splits a document into turn blocks. Incomplete blocks are left
// out.
type Segmenter interface {
	Segment(text string) []Block
}

// LineSegmenter is the default Segmenter. It scans the document line by
// line:
//
//   - a request block starts at a line that is exactly ```reason (or
//     ```enzyme) and ends at the next line that is exactly ```; the first
//     bare fence closes it, as in markdown, even when the block holds
//     another fence opener;
//   - an answer starts at the line > [!💭]+ and runs over the following
//     lines beginning with >. It only counts once a terminator follows: a
//     non-empty line not starting with >, or an empty line with more text
//     after it;
//   - other fenced code opened with a language tag is skipped so callouts
//     quoted inside it are not read as answers. A stray bare fence is
//     ignored.
type LineSegmenter struct{}

type line struct {
	text   string
	offset int
}

func splitLines(text string) []line {
	raw := strings.Split(text, "\n")
	out := make([]line, len(raw))
	off := 0
	for i, l := range raw {
		out[i] = line{text: strings.TrimSuffix(l, "\r"), offset: off}
		off += len(l) + 1
	}
	return out
}

func isRequestFence(s string) bool {
	s = strings.TrimRight(s, " \t")
	return s == FenceReason || s == FenceEnzyme
}

func isCloseFence(s string) bool {
	return strings.TrimRight(s, " \t") == FenceClose
}

func (LineSegmenter) Segment(text string) []Block {
	lines := splitLines(text)
	var blocks []Block

	for i := 0; i < len(lines); {
		cur := lines[i].text
		switch {
		case isRequestFence(cur):
			end := closingFence(lines, i+1)
			if end < 0 {
				// unterminated: the rest of the document is inside it
				return blocks
			}
			blocks = append(blocks, Block{
				Role:   RoleUser,
				Offset: lines[i].offset,
				Body:   joinLines(lines[i+1 : end]),
			})
			i = end + 1

		case cur == CalloutHeader:
			end := i + 1
			for end < len(lines) && strings.HasPrefix(lines[end].text, ">") {
				end++
			}
			if !terminated(lines, end) {
				return blocks
			}
			body := make([]string, 0, end-i-1)
			for _, l := range lines[i+1 : end] {
				body = append(body, unquote(l.text))
			}
			blocks = append(blocks, Block{
				Role:   RoleAssistant,
				Offset: lines[i].offset,
				Body:   strings.Join(body, "\n"),
			})
			i = end

		case isCodeFence(cur):
			end := closingFence(lines, i+1)
			if end < 0 {
				return blocks
			}
			i = end + 1

		default:
			i++
		}
	}
	return blocks
}

func isCodeFence(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, FenceClose) && len(s) > len(FenceClose) && s[len(FenceClose)] != '`'
}

func closingFence(lines []line, from int) int {
	for j := from; j < len(lines); j++ {
		if isCloseFence(lines[j].text) {
			return j
		}
	}
	return -1
}

// terminated reports whether a callout ending before line at is complete.
// A callout that runs to the end of the document, with or without a final
// newline, is not: it may still be being written.
func terminated(lines []line, at int) bool {
	if at >= len(lines) {
		return false
	}
	if lines[at].text != "" {
		return true
	}
	return at+1 < len(lines)
}

func unquote(s string) string {
	if strings.HasPrefix(s, QuotePrefix) {
		return s[len(QuotePrefix):]
	}
	return strings.TrimPrefix(s, ">")
}

func joinLines(ls []line) string {
	parts := make([]string, len(ls))
	for i, l := range ls {
		parts[i] = l.text
	}
	return strings.Join(parts, "\n")
}

var _ Segmenter = LineSegmenter{}

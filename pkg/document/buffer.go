// Package document is the line-oriented text buffer a synthesis is written
// into, and the container that appends an answer to it.
package document

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// Position is a place in the document. Line and Ch are zero-based; Ch counts
// characters, not bytes.
type Position struct {
	Line int `json:"line"`
	Ch   int `json:"ch"`
}

// Before reports whether p comes before q.
func (p Position) Before(q Position) bool {
	return p.Line < q.Line || (p.Line == q.Line && p.Ch < q.Ch)
}

// Editor is the document as the synthesis sees it.
type Editor interface {
	// ReplaceRange replaces the text between from and to with text. Equal
	// positions insert.
	ReplaceRange(text string, from, to Position)
	GetRange(from, to Position) string
	SetCursor(pos Position)
	ScrollIntoView(from, to Position)
	LineCount() int
	Line(n int) string
}

// Insert inserts text at pos.
func Insert(e Editor, text string, pos Position) {
	e.ReplaceRange(text, pos, pos)
}

// Buffer is an in-memory Editor. Out of range positions clamp to the
// nearest valid one.
type Buffer struct {
	mu       sync.RWMutex
	text     string
	cursor   Position
	viewFrom Position
	viewTo   Position
}

// NewBuffer creates a buffer holding text.
func NewBuffer(text string) *Buffer {
	return &Buffer{text: text}
}

// String returns the whole document.
func (b *Buffer) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text
}

// offset converts a position to a byte offset.
func (b *Buffer) offset(p Position) int {
	if p.Line < 0 {
		return 0
	}
	off := 0
	for i := 0; i < p.Line; i++ {
		nl := strings.IndexByte(b.text[off:], '\n')
		if nl < 0 {
			return len(b.text)
		}
		off += nl + 1
	}
	line := b.text[off:]
	if nl := strings.IndexByte(line, '\n'); nl >= 0 {
		line = line[:nl]
	}
	if p.Ch <= 0 {
		return off
	}
	n := 0
	for i := range line {
		if n == p.Ch {
			return off + i
		}
		n++
	}
	return off + len(line)
}

func (b *Buffer) ReplaceRange(text string, from, to Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if to.Before(from) {
		from, to = to, from
	}
	start, end := b.offset(from), b.offset(to)
	b.text = b.text[:start] + text + b.text[end:]
}

func (b *Buffer) GetRange(from, to Position) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if to.Before(from) {
		from, to = to, from
	}
	return b.text[b.offset(from):b.offset(to)]
}

func (b *Buffer) SetCursor(pos Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cursor = pos
}

// Cursor returns the last position passed to SetCursor.
func (b *Buffer) Cursor() Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cursor
}

func (b *Buffer) ScrollIntoView(from, to Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.viewFrom, b.viewTo = from, to
}

// Viewport returns the range last scrolled into view.
func (b *Buffer) Viewport() (from, to Position) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.viewFrom, b.viewTo
}

func (b *Buffer) LineCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return strings.Count(b.text, "\n") + 1
}

func (b *Buffer) Line(n int) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n < 0 {
		return ""
	}
	lines := strings.SplitN(b.text, "\n", n+2)
	if n >= len(lines) {
		return ""
	}
	return lines[n]
}

// End returns the position just past the last character.
func (b *Buffer) End() Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	last := strings.LastIndexByte(b.text, '\n')
	return Position{
		Line: strings.Count(b.text, "\n"),
		Ch:   utf8.RuneCountInString(b.text[last+1:]),
	}
}

var _ Editor = (*Buffer)(nil)

package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferRanges(t *testing.T) {
	b := NewBuffer("first\nsecond 💭 line\nthird")

	assert.Equal(t, 3, b.LineCount())
	assert.Equal(t, "second 💭 line", b.Line(1))
	assert.Equal(t, "", b.Line(7))
	assert.Equal(t, "", b.Line(-1))

	assert.Equal(t, "st\nsecond 💭", b.GetRange(Position{0, 3}, Position{1, 8}))
	assert.Equal(t, "st\nsecond 💭", b.GetRange(Position{1, 8}, Position{0, 3}), "reversed ranges are swapped")
	assert.Equal(t, "third", b.GetRange(Position{2, 0}, Position{9, 0}), "past the end clamps")
	assert.Equal(t, "first", b.GetRange(Position{0, 0}, Position{0, 99}))

	b.ReplaceRange("X", Position{1, 7}, Position{1, 8})
	assert.Equal(t, "second X line", b.Line(1))

	Insert(b, "\nnew", Position{0, 5})
	assert.Equal(t, "first\nnew\nsecond X line\nthird", b.String())
	assert.Equal(t, Position{Line: 3, Ch: 5}, b.End())

	b.SetCursor(Position{2, 1})
	assert.Equal(t, Position{2, 1}, b.Cursor())
	b.ScrollIntoView(Position{1, 0}, Position{2, 0})
	from, to := b.Viewport()
	assert.Equal(t, Position{1, 0}, from)
	assert.Equal(t, Position{2, 0}, to)
}

func TestBufferEmpty(t *testing.T) {
	b := NewBuffer("")
	assert.Equal(t, 1, b.LineCount())
	assert.Equal(t, Position{}, b.End())
	Insert(b, "hello", Position{3, 3})
	assert.Equal(t, "hello", b.String())
}

func TestPositionBefore(t *testing.T) {
	assert.True(t, Position{0, 5}.Before(Position{1, 0}))
	assert.True(t, Position{1, 0}.Before(Position{1, 1}))
	assert.False(t, Position{1, 1}.Before(Position{1, 1}))
	assert.False(t, Position{2, 0}.Before(Position{1, 9}))
}

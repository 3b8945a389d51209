package document

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kittclouds/notesynth/pkg/conversation"
)

const (
	calloutOpen = "\n" + conversation.CalloutHeader + "\n" + conversation.QuotePrefix
	nextRequest = "\n\n" + conversation.FenceReason + "\n\n" + conversation.FenceClose + "\n"
)

// Container writes one answer into the document, below the request block
// that asked for it. Text only ever goes in at the container's cursor, and
// the cursor is recomputed from every insertion.
type Container struct {
	editor   Editor
	cur      Position
	fenceEnd int // line of the request block's closing fence
	rec      *conversation.Reconstructor
}

// NewContainer resumes a container whose cursor is at cur.
func NewContainer(e Editor, cur Position, fenceEnd int, rec *conversation.Reconstructor) *Container {
	if rec == nil {
		rec = conversation.NewReconstructor()
	}
	return &Container{editor: e, cur: cur, fenceEnd: fenceEnd, rec: rec}
}

// Open starts an answer callout after the request block whose closing fence
// is on line fenceEnd, and returns a container positioned inside it. Text
// directly below the fence is pushed down rather than pulled into the
// callout.
func Open(e Editor, fenceEnd int, rec *conversation.Reconstructor) *Container {
	if e.LineCount() <= fenceEnd+1 || e.Line(fenceEnd+1) != "" {
		end := Position{Line: fenceEnd, Ch: utf8.RuneCountInString(e.Line(fenceEnd))}
		Insert(e, "\n", end)
	}
	Insert(e, calloutOpen, Position{Line: fenceEnd + 1})
	return NewContainer(e, Position{Line: fenceEnd + 3, Ch: len(conversation.QuotePrefix)}, fenceEnd, rec)
}

// Cursor returns where the next text goes.
func (c *Container) Cursor() Position { return c.cur }

// quote continues the callout across newlines in text.
func quote(text string) string {
	return strings.ReplaceAll(text, "\n", "\n"+conversation.QuotePrefix)
}

func (c *Container) appendText(text string) {
	formatted := quote(text)
	Insert(c.editor, formatted, c.cur)

	lines := strings.Split(formatted, "\n")
	last := utf8.RuneCountInString(lines[len(lines)-1])
	if len(lines) > 1 {
		c.cur.Ch = last
	} else {
		c.cur.Ch += last
	}
	c.cur.Line += len(lines) - 1
}

// AppendText writes text into the callout and scrolls to it.
func (c *Container) AppendText(text string) {
	c.appendText(text)
	c.editor.ScrollIntoView(c.cur, c.cur)
}

// WaitPlaceholder shows a pulsing placeholder at the cursor and returns a
// function that removes it. The cursor does not move.
func (c *Container) WaitPlaceholder(label string) (remove func()) {
	placeholder := fmt.Sprintf(` <span style="animation: pulsate 1s infinite">%s</span>`, label)
	at := c.cur
	Insert(c.editor, placeholder, at)
	return func() {
		c.editor.ReplaceRange("", at, Position{Line: at.Line, Ch: at.Ch + utf8.RuneCountInString(placeholder)})
	}
}

// ResetText discards everything written so far and reopens an empty
// callout.
func (c *Container) ResetText() {
	c.editor.ReplaceRange(calloutOpen, Position{Line: c.fenceEnd + 1}, c.cur)
	c.cur = Position{Line: c.fenceEnd + 3, Ch: len(conversation.QuotePrefix)}
}

// RenderMetadata appends the metadata as a hidden div inside the callout.
func (c *Container) RenderMetadata(meta []conversation.Metadata) error {
	if meta == nil {
		meta = []conversation.Metadata{}
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	c.appendText("\n" + conversation.HiddenOpen + string(b) + conversation.HiddenClose + "\n")
	return nil
}

// Finalize closes the answer and opens an empty request block below it with
// the editor cursor inside.
func (c *Container) Finalize() {
	Insert(c.editor, nextRequest, c.cur)
	c.editor.SetCursor(Position{Line: c.cur.Line + 3, Ch: 0})
}

// MessagesToHere reconstructs the conversation up to the container cursor.
func (c *Container) MessagesToHere() []conversation.Turn {
	return c.MessagesTo(c.cur)
}

// MessagesTo reconstructs the conversation up to pos.
func (c *Container) MessagesTo(pos Position) []conversation.Turn {
	return c.rec.Turns(c.editor.GetRange(Position{}, pos))
}

// RequestBlock is the line span of a request block, from its opening fence
// to its closing fence.
type RequestBlock struct {
	Start int
	End   int
}

// RequestBlocks returns every complete request block in text, in document
// order.
func RequestBlocks(text string) []RequestBlock {
	lines := strings.Split(text, "\n")
	var out []RequestBlock
	for _, b := range (conversation.LineSegmenter{}).Segment(text) {
		if b.Role != conversation.RoleUser {
			continue
		}
		start := strings.Count(text[:b.Offset], "\n")
		for j := start + 1; j < len(lines); j++ {
			if strings.TrimRight(strings.TrimSuffix(lines[j], "\r"), " \t") == conversation.FenceClose {
				out = append(out, RequestBlock{Start: start, End: j})
				break
			}
		}
	}
	return out
}

// RequestFenceEnds returns the closing fence line of every complete request
// block in text.
func RequestFenceEnds(text string) []int {
	blocks := RequestBlocks(text)
	ends := make([]int, len(blocks))
	for i, b := range blocks {
		ends[i] = b.End
	}
	return ends
}

// SetBlockChoice rewrites the choice directive of the request block b to
// strategy. It reports false when the block has no choice.
func SetBlockChoice(e Editor, b RequestBlock, strategy string) bool {
	from, to := Position{Line: b.Start + 1}, Position{Line: b.End}
	raw := strings.TrimSuffix(e.GetRange(from, to), "\n")
	updated, ok := conversation.SetChoice(raw, strategy)
	if !ok {
		return false
	}
	e.ReplaceRange(updated+"\n", from, to)
	return true
}

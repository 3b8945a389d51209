package conversation

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// MessageType tags assistant message metadata.
type MessageType string

const (
	TypeSynthesis     MessageType = "synthesis"
	TypeSynthesisPlan MessageType = "synthesisPlan"
)

// Metadata is attached to a turn. Synthesis entries only carry an id;
// synthesisPlan entries also carry the sources and prompt of the request.
type Metadata struct {
	ID      string      `json:"id"`
	Type    MessageType `json:"assistantMessageType"`
	Sources []Source    `json:"sources,omitempty"`
	Prompt  string      `json:"prompt,omitempty"`
}

// Turn is one message of the reconstructed conversation.
type Turn struct {
	Role     Role       `json:"role"`
	Content  string     `json:"content"`
	Metadata []Metadata `json:"metadata,omitempty"`
}

// Cursor is a position in the document. Ch counts characters, not bytes.
type Cursor struct {
	Line int
	Ch   int
}

// Aggregator is a named, reusable request: a stable id, its sources and
// the guidance for synthesizing them.
type Aggregator struct {
	ID       string
	Sources  []Source
	Guidance string
}

// AggregatorLookup finds aggregators named by request blocks.
type AggregatorLookup interface {
	LookupAggregator(name string) (Aggregator, bool)
}

// IDFunc returns the plan id of an ad hoc request block at offset.
type IDFunc func(offset int, body string) string

var planNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("notesynth:synthesisPlan"))

// StableID derives the id from the block position and body, so the same
// document always yields the same ids.
func StableID(offset int, body string) string {
	return uuid.NewSHA1(planNamespace, []byte(strconv.Itoa(offset)+"\x00"+body)).String()
}

// RandomID ignores its input and returns a fresh random id.
func RandomID(int, string) string {
	return uuid.NewString()
}

// Reconstructor turns a document into turns. The zero value is ready to
// use.
type Reconstructor struct {
	Segmenter   Segmenter
	NewID       IDFunc
	Aggregators AggregatorLookup
}

// Option configures a Reconstructor.
type Option func(*Reconstructor)

func WithSegmenter(s Segmenter) Option { return func(r *Reconstructor) { r.Segmenter = s } }

func WithIDFunc(f IDFunc) Option { return func(r *Reconstructor) { r.NewID = f } }

func WithAggregators(a AggregatorLookup) Option { return func(r *Reconstructor) { r.Aggregators = a } }

// NewReconstructor returns a Reconstructor with the line segmenter and
// stable ids.
func NewReconstructor(opts ...Option) *Reconstructor {
	r := &Reconstructor{Segmenter: LineSegmenter{}, NewID: StableID}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconstruct returns the turns of the document up to the cursor, in order.
// It keeps no state between calls and never fails: malformed or incomplete
// blocks are left out.
func (r *Reconstructor) Reconstruct(text string, at Cursor) []Turn {
	return r.Turns(Prefix(text, at))
}

// Turns returns the turns of a whole document.
func (r *Reconstructor) Turns(text string) []Turn {
	seg := r.Segmenter
	if seg == nil {
		seg = LineSegmenter{}
	}
	blocks := seg.Segment(text)
	turns := make([]Turn, 0, len(blocks))
	for _, b := range blocks {
		switch b.Role {
		case RoleUser:
			turns = append(turns, r.userTurn(b))
		case RoleAssistant:
			turns = append(turns, assistantTurn(b))
		}
	}
	return turns
}

func (r *Reconstructor) userTurn(b Block) Turn {
	contents := ParseBlockContents(b.Body)
	plan := Metadata{
		Type:    TypeSynthesisPlan,
		Sources: contents.PlanSources(),
		Prompt:  contents.Prompt,
	}

	if contents.Aggregator != "" && r.Aggregators != nil {
		if agg, ok := r.Aggregators.LookupAggregator(contents.Aggregator); ok {
			plan.ID = agg.ID
			plan.Sources = append([]Source{}, agg.Sources...)
			if plan.Prompt == "" {
				plan.Prompt = agg.Guidance
			}
		}
	}
	if plan.ID == "" {
		newID := r.NewID
		if newID == nil {
			newID = StableID
		}
		plan.ID = newID(b.Offset, b.Body)
	}

	return Turn{Role: RoleUser, Content: plan.Prompt, Metadata: []Metadata{plan}}
}

var hiddenRe = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(HiddenOpen) + `(.*)` + regexp.QuoteMeta(HiddenClose))

func assistantTurn(b Block) Turn {
	t := Turn{Role: RoleAssistant}
	if m := hiddenRe.FindStringSubmatch(b.Body); m != nil {
		var meta []Metadata
		if err := json.Unmarshal([]byte(m[1]), &meta); err == nil {
			t.Metadata = meta
		}
	}
	t.Content = strings.TrimSpace(hiddenRe.ReplaceAllString(b.Body, ""))
	return t
}

// Prefix returns the text before the cursor. Positions past the end of a
// line or of the document clamp to it.
func Prefix(text string, at Cursor) string {
	if at.Line < 0 {
		return ""
	}
	off := 0
	for i := 0; i < at.Line; i++ {
		nl := strings.IndexByte(text[off:], '\n')
		if nl < 0 {
			return text
		}
		off += nl + 1
	}
	rest := text[off:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	return text[:off+runeOffset(rest, at.Ch)]
}

// runeOffset converts a character count on a line to a byte offset.
func runeOffset(s string, ch int) int {
	if ch <= 0 {
		return 0
	}
	n := 0
	for i := range s {
		if n == ch {
			return i
		}
		n++
	}
	return len(s)
}

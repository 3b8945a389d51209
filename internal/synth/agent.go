// Package synth answers request blocks: it retrieves the source material a
// request names, asks the model for a synthesis and writes the answer into
// the document.
package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kittclouds/notesynth/internal/logger"
	"github.com/kittclouds/notesynth/pkg/conversation"
	"github.com/kittclouds/notesynth/pkg/document"
	"github.com/kittclouds/notesynth/pkg/extract"
)

// DefaultPlaceholder is the label shown while the model is working.
const DefaultPlaceholder = "Synthesizing"

// ErrNoRequest is returned when the line given as a fence end does not
// close a request block.
var ErrNoRequest = errors.New("no request block before the answer position")

// Retriever fetches the source material of a request.
type Retriever interface {
	RetrieveAll(ctx context.Context, sources []conversation.Source) ([]extract.FileContents, error)
}

// Result describes a finished synthesis.
type Result struct {
	ID      string                 `json:"id"`
	Answer  string                 `json:"answer"`
	Sources []extract.FileContents `json:"sources"`
	Dropped int                    `json:"dropped"`
	Plan    conversation.Metadata  `json:"plan"`
}

// Agent runs syntheses against one retriever and model.
type Agent struct {
	retriever       Retriever
	llm             LLMClient
	rec             *conversation.Reconstructor
	log             *logger.Logger
	maxSourceTokens int
	newID           func() string
	placeholder     string
	locks           Locks
}

// Option configures an Agent.
type Option func(*Agent)

// WithReconstructor sets how the document is read back into turns.
func WithReconstructor(r *conversation.Reconstructor) Option {
	return func(a *Agent) {
		if r != nil {
			a.rec = r
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.log = l
		}
	}
}

// WithMaxSourceTokens caps the estimated size of the source material sent
// to the model. Zero means no cap.
func WithMaxSourceTokens(n int) Option {
	return func(a *Agent) { a.maxSourceTokens = n }
}

// WithMessageID sets the generator of synthesis ids.
func WithMessageID(f func() string) Option {
	return func(a *Agent) {
		if f != nil {
			a.newID = f
		}
	}
}

func WithPlaceholder(label string) Option {
	return func(a *Agent) { a.placeholder = label }
}

// NewAgent creates an agent.
func NewAgent(r Retriever, llm LLMClient, opts ...Option) *Agent {
	a := &Agent{
		retriever:   r,
		llm:         llm,
		rec:         conversation.NewReconstructor(),
		log:         logger.Nop(),
		newID:       uuid.NewString,
		placeholder: DefaultPlaceholder,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Trigger runs Synthesize under the lock of the request block identified by
// key. Busy and failure notices go to notify.
func (a *Agent) Trigger(ctx context.Context, key string, e document.Editor, fenceEnd int, notify Notifier) (*Result, error) {
	var res *Result
	err := a.locks.For(key).RunLocked(ctx, notify, func(ctx context.Context) error {
		var err error
		res, err = a.Synthesize(ctx, e, fenceEnd)
		return err
	})
	return res, err
}

// Synthesize answers the request block whose closing fence is on line
// fenceEnd. The answer goes into a callout below the block, followed by a
// fresh request block for the next turn.
func (a *Agent) Synthesize(ctx context.Context, e document.Editor, fenceEnd int) (*Result, error) {
	turns := a.rec.Turns(e.GetRange(document.Position{}, document.Position{Line: fenceEnd + 1}))
	if len(turns) == 0 || turns[len(turns)-1].Role != conversation.RoleUser {
		return nil, ErrNoRequest
	}
	request := turns[len(turns)-1]
	plan := planOf(request)

	sources := plan.Sources
	if len(sources) == 0 && countUserTurns(turns) == 1 {
		sources = []conversation.Source{{Strategy: extract.RecentMentions.String()}}
	}
	log := a.log.With("plan", plan.ID, "sources", len(sources))

	material, err := a.retriever.RetrieveAll(ctx, sources)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve sources: %w", err)
	}
	kept, dropped := BudgetMaterial(material, a.maxSourceTokens)
	if dropped > 0 {
		log.Warn("source material over budget", "dropped_files", dropped, "max_tokens", a.maxSourceTokens)
	}

	msgs := BuildMessages(turns[:len(turns)-1], kept, request.Content)
	log.Debug("prompt assembled", "files", len(kept), "tokens", EstimateMessagesTokens(msgs))

	c := document.Open(e, fenceEnd, a.rec)
	remove := c.WaitPlaceholder(a.placeholder)
	answer, err := a.llm.Complete(ctx, msgs)
	remove()
	if err != nil {
		return nil, fmt.Errorf("failed to complete synthesis: %w", err)
	}

	var subs []extract.BlockRefSubstitution
	for _, fc := range kept {
		subs = append(subs, fc.Substitutions...)
	}
	answer = extract.ResolveMarkers(strings.TrimSpace(answer), subs)
	c.AppendText(answer)

	id := a.newID()
	if err := c.RenderMetadata([]conversation.Metadata{{ID: id, Type: conversation.TypeSynthesis}}); err != nil {
		return nil, err
	}
	c.Finalize()

	log.Info("synthesis written", "id", id, "files", len(kept))
	return &Result{ID: id, Answer: answer, Sources: kept, Dropped: dropped, Plan: plan}, nil
}

func planOf(t conversation.Turn) conversation.Metadata {
	for _, m := range t.Metadata {
		if m.Type == conversation.TypeSynthesisPlan {
			return m
		}
	}
	return conversation.Metadata{Type: conversation.TypeSynthesisPlan, Prompt: t.Content}
}

func countUserTurns(turns []conversation.Turn) int {
	n := 0
	for _, t := range turns {
		if t.Role == conversation.RoleUser {
			n++
		}
	}
	return n
}

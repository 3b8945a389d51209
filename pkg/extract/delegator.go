package extract

import (
	"context"

	"github.com/kittclouds/notesynth/internal/logger"
	"github.com/kittclouds/notesynth/pkg/markdown"
)

// Delegator dispatches to the strategy named by the request. It is itself
// an Extractor, so strategies can hand sub-extractions back to it.
type Delegator struct {
	whole  WholeFile
	trim   TrimToEnd
	single SingleBacklinker
	all    AllBacklinkers
}

// Option configures a Delegator.
type Option func(*toolkit, *Delegator)

// WithMarkerFunc replaces the random marker generator.
func WithMarkerFunc(f MarkerFunc) Option {
	return func(t *toolkit, _ *Delegator) { t.marker = f }
}

// WithLogger sets the logger used for embed failures.
func WithLogger(l *logger.Logger) Option {
	return func(t *toolkit, _ *Delegator) { t.embeds.Log = l }
}

// WithTrimSections changes how many trailing sections LongContent keeps.
func WithTrimSections(n int) Option {
	return func(_ *toolkit, d *Delegator) { d.trim.Sections = n }
}

// NewDelegator wires every strategy to vault.
func NewDelegator(vault Vault, opts ...Option) *Delegator {
	t := &toolkit{
		vault:  vault,
		embeds: &EmbedResolver{Vault: vault},
		marker: RandomMarker,
	}
	d := &Delegator{
		whole:  WholeFile{t},
		trim:   TrimToEnd{toolkit: t, Sections: DefaultTrimSections},
		single: SingleBacklinker{t},
	}
	d.all = AllBacklinkers{toolkit: t, Dispatcher: d}
	for _, opt := range opts {
		opt(t, d)
	}
	return d
}

// Extract runs the strategy. Unknown strategies fall back to the whole file.
func (d *Delegator) Extract(ctx context.Context, file File, meta *markdown.Metadata, strategy Strategy, evergreen string) ([]FileContents, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch strategy {
	case AllEvergreenReferrers:
		return d.all.Extract(ctx, file, meta, strategy, evergreen)
	case LongContent:
		return d.trim.Extract(ctx, file, meta, strategy, evergreen)
	case SingleEvergreenReferrer:
		return d.single.Extract(ctx, file, meta, strategy, evergreen)
	default:
		return d.whole.Extract(ctx, file, meta, strategy, evergreen)
	}
}

var _ Extractor = (*Delegator)(nil)

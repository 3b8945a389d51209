// Package extract turns vault notes into model-ready source material.
//
// Every strategy reads a note, inlines its block embeds, strips frontmatter
// and code fences, selects a window of the text and finally swaps block
// anchors (^id) for short %xxxx% markers. The substitutions returned
// alongside the text map each marker back to the block reference it
// replaced, so a model answer citing markers can be turned into embeds.
package extract

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kittclouds/notesynth/pkg/markdown"
)

// ErrNotFound is returned when a note that was explicitly named cannot be
// resolved.
var ErrNotFound = errors.New("note not found")

// File identifies a vault note.
type File struct {
	Path      string    `json:"path"`
	Basename  string    `json:"basename"`
	Extension string    `json:"extension"`
	ModTime   time.Time `json:"mtime"`
}

// IsMarkdown reports whether the file is a markdown note.
func (f File) IsMarkdown() bool {
	return strings.EqualFold(f.Extension, "md")
}

// BlockRefSubstitution maps a marker back to the block reference it stands
// for.
type BlockRefSubstitution struct {
	Template       string `json:"template"`        // %xxxx%
	BlockReference string `json:"block_reference"` // ![[Title#^id]]
}

// FileContents is the extracted material of one note.
type FileContents struct {
	File          string                 `json:"file"` // basename
	Path          string                 `json:"path"`
	LastModified  time.Time              `json:"last_modified_date"`
	Contents      string                 `json:"contents"`
	Substitutions []BlockRefSubstitution `json:"substitutions"`
}

// Vault is the note store as the extractors see it.
type Vault interface {
	// Read returns the current text of a note.
	Read(ctx context.Context, file File) (string, error)
	// Resolve finds the note a link path points to, relative to the note
	// at sourcePath. Unresolvable links return an error wrapping ErrNotFound.
	Resolve(ctx context.Context, linkpath, sourcePath string) (File, error)
	// Metadata returns the parsed metadata of a note.
	Metadata(ctx context.Context, file File) (*markdown.Metadata, error)
	// Backlinks returns the paths of notes that link to or embed file.
	Backlinks(ctx context.Context, file File) ([]string, error)
}

// Extractor selects source material from one note.
type Extractor interface {
	Extract(ctx context.Context, file File, meta *markdown.Metadata, strategy Strategy, evergreen string) ([]FileContents, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, file File, meta *markdown.Metadata, strategy Strategy, evergreen string) ([]FileContents, error)

func (f ExtractorFunc) Extract(ctx context.Context, file File, meta *markdown.Metadata, strategy Strategy, evergreen string) ([]FileContents, error) {
	return f(ctx, file, meta, strategy, evergreen)
}

// Strategy names an extraction algorithm.
type Strategy int

const (
	// Basic extracts the whole note.
	Basic Strategy = iota
	// LongContent keeps only the last five sections, for append-only logs.
	LongContent
	// SingleEvergreenReferrer keeps the windows around mentions of an
	// evergreen note.
	SingleEvergreenReferrer
	// AllEvergreenReferrers extracts the mention windows of every note
	// referring to the file.
	AllEvergreenReferrers
	// RecentMentions is the default choice for a first request without
	// sources. Extraction treats it like Basic.
	RecentMentions
)

var strategyNames = [...]string{
	Basic:                   "Basic",
	LongContent:             "LongContent",
	SingleEvergreenReferrer: "SingleEvergreenReferrer",
	AllEvergreenReferrers:   "AllEvergreenReferrers",
	RecentMentions:          "RecentMentions",
}

func (s Strategy) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return "Basic"
	}
	return strategyNames[s]
}

// ParseStrategy maps a strategy name (case-insensitive) to its value.
// Unknown or empty names return Basic and false.
func ParseStrategy(name string) (Strategy, bool) {
	name = strings.TrimSpace(name)
	for i, n := range strategyNames {
		if strings.EqualFold(n, name) {
			return Strategy(i), true
		}
	}
	return Basic, false
}

// SelectableStrategies are the strategies a request block may choose.
func SelectableStrategies() []Strategy {
	return []Strategy{RecentMentions, LongContent, Basic}
}

func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Strategy) UnmarshalText(b []byte) error {
	*s, _ = ParseStrategy(string(b))
	return nil
}

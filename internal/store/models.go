// Package store provides persistence for vault notes, their links and tags.
// MemStore and SQLiteStore implement the same Storer interface; notes use a
// temporal table pattern so every content change keeps the previous version.
package store

import (
	"encoding/json"
	"errors"
	"path"
	"strings"

	"github.com/kittclouds/notesynth/pkg/markdown"
	"github.com/kittclouds/notesynth/pkg/query"
)

// ErrNotFound is returned when a named note or version does not exist.
var ErrNotFound = errors.New("note not found")

// Note represents a versioned vault note, keyed by its vault path.
type Note struct {
	ID        string `json:"id"` // vault path, e.g. "journal/2024-01-01.md"
	Version   int    `json:"version"`
	Title     string `json:"title"`     // basename without extension
	Folder    string `json:"folder"`    // "" for the vault root
	Extension string `json:"extension"` // without the dot
	Content   string `json:"content"`
	Metadata  string `json:"metadata,omitempty"` // JSON of markdown.Metadata
	MTime     int64  `json:"mtime"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`

	// Temporal fields for version tracking
	ValidFrom    int64  `json:"validFrom"`
	ValidTo      *int64 `json:"validTo,omitempty"`
	IsCurrent    bool   `json:"isCurrent"`
	ChangeReason string `json:"changeReason,omitempty"`
}

// NewNote builds a note for a vault path, deriving title, folder and
// extension from it.
func NewNote(id, content string, mtime int64) *Note {
	id = strings.TrimPrefix(path.Clean("/"+id), "/")
	folder := path.Dir(id)
	if folder == "." {
		folder = ""
	}
	ext := strings.TrimPrefix(path.Ext(id), ".")
	title := strings.TrimSuffix(path.Base(id), path.Ext(id))
	return &Note{
		ID:        id,
		Title:     title,
		Folder:    folder,
		Extension: ext,
		Content:   content,
		MTime:     mtime,
		CreatedAt: mtime,
		UpdatedAt: mtime,
	}
}

// IsMarkdown reports whether the note is a markdown note.
func (n *Note) IsMarkdown() bool {
	return strings.EqualFold(n.Extension, "md")
}

// ParsedMetadata decodes the stored metadata, computing it from the content
// when none was stored.
func (n *Note) ParsedMetadata() (*markdown.Metadata, error) {
	if n.Metadata == "" {
		return markdown.Parse(n.Content), nil
	}
	var meta markdown.Metadata
	if err := json.Unmarshal([]byte(n.Metadata), &meta); err != nil {
		return nil, err
	}
	if meta.Blocks == nil {
		meta.Blocks = make(map[string]markdown.Block)
	}
	return &meta, nil
}

// Link kinds
const (
	LinkKindLink  = "link"
	LinkKindEmbed = "embed"
)

// Link is one wikilink or embed from a note.
type Link struct {
	SourceID string `json:"sourceId"`
	Target   string `json:"target"`   // link path as written, without subpath
	TargetID string `json:"targetId"` // resolved note id, "" when unresolved
	Subpath  string `json:"subpath,omitempty"`
	Kind     string `json:"kind"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
}

// LinksFromMetadata converts parsed references into unresolved links.
func LinksFromMetadata(sourceID string, meta *markdown.Metadata) []*Link {
	var links []*Link
	add := func(refs []markdown.Reference, kind string) {
		for _, r := range refs {
			target, sub := markdown.ParseLinktext(r.Link)
			if target == "" {
				// [[#Heading]] points into the note itself
				target = sourceID
			}
			links = append(links, &Link{
				SourceID: sourceID,
				Target:   target,
				Subpath:  sub,
				Kind:     kind,
				Start:    r.Position.Start,
				End:      r.Position.End,
			})
		}
	}
	add(meta.Links, LinkKindLink)
	add(meta.Embeds, LinkKindEmbed)
	return links
}

// Storer defines the interface for data persistence.
// This allows swapping between MemStore (testing) and SQLiteStore (production).
type Storer interface {
	// Notes - Basic CRUD
	UpsertNote(note *Note) error
	GetNote(id string) (*Note, error)
	DeleteNote(id string) error
	ListNotes(folder string) ([]*Note, error)
	CountNotes() (int, error)

	// Notes - Version-aware operations
	CreateNote(note *Note) error
	UpdateNote(note *Note, reason string) error
	GetNoteVersion(id string, version int) (*Note, error)
	ListNoteVersions(id string) ([]*Note, error)
	GetNoteAtTime(id string, timestamp int64) (*Note, error)
	RestoreNoteVersion(id string, version int) error

	// Links and tags
	ReplaceLinks(sourceID string, links []*Link) error
	ListLinks(sourceID string) ([]*Link, error)
	Backlinks(targetID string) ([]string, error)
	Outgoing(sourceID string) ([]string, error)
	ReplaceTags(noteID string, tags []string) error
	ListTags(noteID string) ([]string, error)

	// ResolveLink finds the note a link path points to, preferring notes in
	// the folder of fromID. Returns nil when nothing matches.
	ResolveLink(link, fromID string) (*Note, error)

	// Select runs the source, sort and limit clauses of a query and returns
	// matching note ids. SIMILAR is handled by QueryEngine.
	Select(q *query.Query) ([]string, error)

	// Lifecycle
	Close() error
}

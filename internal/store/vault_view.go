package store

import (
	"context"
	"fmt"
	"time"

	"github.com/kittclouds/notesynth/pkg/extract"
	"github.com/kittclouds/notesynth/pkg/markdown"
)

// VaultView exposes a Storer as the vault the extractors read from.
type VaultView struct {
	store Storer
}

// NewVaultView wraps store.
func NewVaultView(store Storer) *VaultView {
	return &VaultView{store: store}
}

// FileOf converts a stored note to the extractor's file handle.
func FileOf(n *Note) extract.File {
	return extract.File{
		Path:      n.ID,
		Basename:  n.Title,
		Extension: n.Extension,
		ModTime:   time.UnixMilli(n.MTime).UTC(),
	}
}

func (v *VaultView) note(ctx context.Context, id string) (*Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, err := v.store.GetNote(id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("%w: %s", extract.ErrNotFound, id)
	}
	return n, nil
}

func (v *VaultView) Read(ctx context.Context, file extract.File) (string, error) {
	n, err := v.note(ctx, file.Path)
	if err != nil {
		return "", err
	}
	return n.Content, nil
}

func (v *VaultView) Resolve(ctx context.Context, linkpath, sourcePath string) (extract.File, error) {
	if err := ctx.Err(); err != nil {
		return extract.File{}, err
	}
	n, err := v.store.ResolveLink(linkpath, sourcePath)
	if err != nil {
		return extract.File{}, err
	}
	if n == nil {
		return extract.File{}, fmt.Errorf("%w: %s", extract.ErrNotFound, linkpath)
	}
	return FileOf(n), nil
}

func (v *VaultView) Metadata(ctx context.Context, file extract.File) (*markdown.Metadata, error) {
	n, err := v.note(ctx, file.Path)
	if err != nil {
		return nil, err
	}
	return n.ParsedMetadata()
}

func (v *VaultView) Backlinks(ctx context.Context, file extract.File) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return v.store.Backlinks(file.Path)
}

var _ extract.Vault = (*VaultView)(nil)

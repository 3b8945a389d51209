// Package query parses the structured query language used to select source
// notes:
//
//	[LIST] [FROM source] [SIMILAR [[Note]]] [SORT field [ASC|DESC]] [LIMIT n]
//
// where source combines "folder", #tag, [[Note]] (notes linking to Note) and
// outgoing([[Note]]) (notes Note links to) with AND, OR, NOT and parentheses.
package query

import (
	"context"
	"errors"
	"fmt"
)

// ErrSyntax is wrapped by every parse error.
var ErrSyntax = errors.New("query syntax error")

// SyntaxError reports where parsing failed.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("query syntax error at %d: %s", e.Pos, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return ErrSyntax }

// Result is one matched note.
type Result struct {
	Path string `json:"path"`
}

// Engine executes query text against a note store.
type Engine interface {
	Query(ctx context.Context, text string) ([]Result, error)
}

// Sort fields
const (
	FieldMTime = "file.mtime"
	FieldName  = "file.name"
	FieldPath  = "file.path"
)

// Query is a parsed query.
type Query struct {
	Source  Expr   // nil selects every note
	Similar string // link target of SIMILAR, "" when absent
	Sort    *Sort
	Limit   int // 0 = unlimited
}

// Sort orders results.
type Sort struct {
	Field string
	Desc  bool
}

// Expr is a source expression.
type Expr interface {
	String() string
}

// Folder matches notes in a folder or any of its subfolders.
type Folder struct{ Path string }

// Tag matches notes carrying a tag (normalized, without #).
type Tag struct{ Name string }

// LinksTo matches notes that link to or embed Target.
type LinksTo struct{ Target string }

// LinkedFrom matches notes that Source links to or embeds.
type LinkedFrom struct{ Source string }

// And matches when both sides match.
type And struct{ Left, Right Expr }

// Or matches when either side matches.
type Or struct{ Left, Right Expr }

// Not inverts its operand.
type Not struct{ Expr Expr }

func (f Folder) String() string     { return fmt.Sprintf("%q", f.Path) }
func (t Tag) String() string        { return "#" + t.Name }
func (l LinksTo) String() string    { return "[[" + l.Target + "]]" }
func (l LinkedFrom) String() string { return "outgoing([[" + l.Source + "]])" }
func (a And) String() string        { return "(" + a.Left.String() + " AND " + a.Right.String() + ")" }
func (o Or) String() string         { return "(" + o.Left.String() + " OR " + o.Right.String() + ")" }
func (n Not) String() string        { return "NOT " + n.Expr.String() }

// Subject is what an in-memory evaluator needs to know about one note.
type Subject interface {
	InFolder(folder string) bool
	HasTag(tag string) bool
	LinksTo(target string) bool
	LinkedFrom(source string) bool
}

// Eval reports whether s satisfies e. A nil expression matches everything.
func Eval(e Expr, s Subject) bool {
	switch v := e.(type) {
	case nil:
		return true
	case Folder:
		return s.InFolder(v.Path)
	case Tag:
		return s.HasTag(v.Name)
	case LinksTo:
		return s.LinksTo(v.Target)
	case LinkedFrom:
		return s.LinkedFrom(v.Source)
	case And:
		return Eval(v.Left, s) && Eval(v.Right, s)
	case Or:
		return Eval(v.Left, s) || Eval(v.Right, s)
	case Not:
		return !Eval(v.Expr, s)
	default:
		return false
	}
}

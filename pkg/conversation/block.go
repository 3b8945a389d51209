// Package conversation recovers a multi-turn dialogue from a synthesis
// document. The document is the only record of the conversation: request
// blocks are fenced ```reason blocks, answers are > [!💭]+ callouts carrying
// their metadata in a hidden div.
package conversation

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source describes what to retrieve for a request: a query, the extraction
// strategy to run on every matching note and an optional evergreen note the
// strategy centres on.
type Source struct {
	Strategy  string `yaml:"strategy,omitempty" json:"strategy,omitempty"`
	Query     string `yaml:"query,omitempty" json:"query,omitempty"`
	Evergreen string `yaml:"evergreen,omitempty" json:"evergreen,omitempty"`
}

// sourceFields accepts dql as an older name for query.
type sourceFields struct {
	Strategy  string `yaml:"strategy" json:"strategy"`
	Query     string `yaml:"query" json:"query"`
	DQL       string `yaml:"dql" json:"dql"`
	Evergreen string `yaml:"evergreen" json:"evergreen"`
}

func (f sourceFields) source() Source {
	s := Source{Strategy: f.Strategy, Query: f.Query, Evergreen: f.Evergreen}
	if s.Query == "" {
		s.Query = f.DQL
	}
	return s
}

func (s *Source) UnmarshalYAML(n *yaml.Node) error {
	var f sourceFields
	if err := n.Decode(&f); err != nil {
		return err
	}
	*s = f.source()
	return nil
}

func (s *Source) UnmarshalJSON(b []byte) error {
	var f sourceFields
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*s = f.source()
	return nil
}

// Choice is a request that picks one of the default strategies instead of
// listing sources. Line is the 0-based line of the choice: directive inside
// the block, so the directive can be rewritten in place.
type Choice struct {
	Strategy string `json:"strategy"`
	Line     int    `json:"line"`
}

// BlockContents is the parsed interior of a request block.
type BlockContents struct {
	Prompt     string   `json:"prompt"`
	Sources    []Source `json:"sources"`
	Choice     *Choice  `json:"choice,omitempty"`
	Aggregator string   `json:"aggregator,omitempty"`
}

// PlanSources returns the sources a synthesis plan for the block runs. A
// choice stands for a single source using the chosen strategy's defaults.
func (b BlockContents) PlanSources() []Source {
	if b.Choice != nil {
		return []Source{{Strategy: b.Choice.Strategy}}
	}
	return append([]Source{}, b.Sources...)
}

type blockDoc struct {
	Choice     string   `yaml:"choice"`
	Sources    []Source `yaml:"sources"`
	Guidance   string   `yaml:"guidance"`
	Aggregator string   `yaml:"aggregator"`
}

// ParseBlockContents reads a request block. Recognised shapes, first match
// wins: a choice directive, a named aggregator, a non-empty source list,
// guidance alone. Anything else, including text that is not YAML at all,
// becomes a bare prompt. It never fails.
func ParseBlockContents(raw string) BlockContents {
	prose := BlockContents{Prompt: raw, Sources: []Source{}}

	var doc blockDoc
	if err := yaml.Unmarshal([]byte(strings.ReplaceAll(raw, "\t", "    ")), &doc); err != nil {
		return prose
	}

	switch {
	case doc.Choice != "":
		return BlockContents{
			Prompt:  doc.Guidance,
			Sources: []Source{},
			Choice:  &Choice{Strategy: doc.Choice, Line: choiceLine(raw)},
		}
	case doc.Aggregator != "":
		return BlockContents{Prompt: doc.Guidance, Sources: []Source{}, Aggregator: doc.Aggregator}
	case len(doc.Sources) > 0:
		return BlockContents{Prompt: doc.Guidance, Sources: doc.Sources}
	case doc.Guidance != "":
		return BlockContents{Prompt: doc.Guidance, Sources: []Source{}}
	}
	return prose
}

func choiceLine(raw string) int {
	for i, line := range strings.Split(raw, "\n") {
		if strings.Contains(line, "choice:") {
			return i
		}
	}
	return -1
}

// SetChoice rewrites the choice directive of a request block to strategy.
// Blocks without a choice are returned unchanged with ok false.
func SetChoice(raw, strategy string) (string, bool) {
	b := ParseBlockContents(raw)
	if b.Choice == nil || b.Choice.Line < 0 {
		return raw, false
	}
	lines := strings.Split(raw, "\n")
	line := lines[b.Choice.Line]
	indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
	lines[b.Choice.Line] = indent + "choice: " + strategy
	return strings.Join(lines, "\n"), true
}

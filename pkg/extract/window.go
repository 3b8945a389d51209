package extract

import (
	"path"
	"regexp"
	"sort"
	"strings"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"
)

var headingRe = regexp.MustCompile(`^#{1,6}\s`)

// span is a byte range [start, end).
type span struct{ start, end int }

// ReferenceWindows returns the paragraphs of text that mention any of the
// targets, as [[Target]], [[Target|alias]], [[Target#sub]], ![[Target]] or
// #Target. A paragraph is a run of non-blank lines; a paragraph that is only
// a heading also takes in the paragraph after it. Overlapping windows are
// merged and returned in document order.
func ReferenceWindows(text string, targets []string) []string {
	patterns := referencePatterns(targets)
	if len(patterns) == 0 || text == "" {
		return nil
	}

	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: true,
		MatchOnlyWholeWords:  false,
		MatchKind:            ahocorasick.LeftMostLongestMatch,
	})
	ac := builder.Build(patterns)

	// Offsets index text itself: ToLower may change byte lengths.
	blocks := paragraphs(text)

	var windows []span
	for _, m := range ac.FindAll(text) {
		if strings.HasPrefix(patterns[m.Pattern()], "#") && !tagBoundary(text, m.Start(), m.End()) {
			continue
		}
		i := blockAt(blocks, m.Start())
		if i < 0 {
			continue
		}
		w := blocks[i]
		if i+1 < len(blocks) && isHeadingOnly(text[w.start:w.end]) {
			w.end = blocks[i+1].end
		}
		windows = append(windows, w)
	}

	merged := mergeSpans(windows)
	out := make([]string, 0, len(merged))
	for _, w := range merged {
		out = append(out, strings.TrimSpace(text[w.start:w.end]))
	}
	return out
}

func referencePatterns(targets []string) []string {
	seen := make(map[string]struct{})
	var patterns []string
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		patterns = append(patterns, p)
	}

	for _, t := range targets {
		t = strings.TrimSpace(t)
		if strings.HasSuffix(strings.ToLower(t), ".md") {
			t = t[:len(t)-len(".md")]
		}
		if t == "" {
			continue
		}
		// the automaton folds ASCII case only; the lowered spelling covers
		// the rest
		names := []string{t, strings.ToLower(t)}
		if base := path.Base(t); base != t {
			names = append(names, base, strings.ToLower(base))
		}
		for _, n := range names {
			// ![[n...]] contains [[n...]]
			add("[[" + n + "]]")
			add("[[" + n + "|")
			add("[[" + n + "#")
			if !strings.ContainsAny(n, " \t") {
				add("#" + n)
			}
		}
	}
	return patterns
}

// tagBoundary reports whether a #tag match stands alone: it starts a line or
// follows whitespace, and is not followed by more tag characters.
func tagBoundary(text string, start, end int) bool {
	if start > 0 {
		prev := text[start-1]
		if prev != ' ' && prev != '\t' && prev != '\n' && prev != '(' {
			return false
		}
	}
	if end < len(text) {
		next := text[end]
		if next == '/' || next == '-' || next == '_' ||
			(next >= 'a' && next <= 'z') || (next >= 'A' && next <= 'Z') ||
			(next >= '0' && next <= '9') || next >= 0x80 {
			return false
		}
	}
	return true
}

// paragraphs splits text into runs of non-blank lines.
func paragraphs(text string) []span {
	var out []span
	start := -1
	off := 0
	for off <= len(text) {
		nl := strings.IndexByte(text[off:], '\n')
		lineEnd := len(text)
		if nl != -1 {
			lineEnd = off + nl
		}
		blank := strings.TrimSpace(text[off:lineEnd]) == ""
		switch {
		case !blank && start == -1:
			start = off
		case blank && start != -1:
			out = append(out, span{start, off - 1})
			start = -1
		}
		if nl == -1 {
			break
		}
		off = lineEnd + 1
	}
	if start != -1 {
		out = append(out, span{start, len(text)})
	}
	return out
}

func blockAt(blocks []span, off int) int {
	i := sort.Search(len(blocks), func(i int) bool { return blocks[i].end > off })
	if i < len(blocks) && blocks[i].start <= off {
		return i
	}
	return -1
}

func isHeadingOnly(block string) bool {
	block = strings.TrimSpace(block)
	return !strings.Contains(block, "\n") && headingRe.MatchString(block)
}

func mergeSpans(spans []span) []span {
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	out := []span{spans[0]}
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

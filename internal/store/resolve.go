package store

import (
	"path"
	"strings"
)

// linkRank scores how well a note matches a link path. Lower is better,
// -1 means no match. Mirrors the vault's shortest-path link resolution:
// an exact path wins, then a path suffix, then a basename match.
func linkRank(link, fromID string, n *Note) int {
	link = strings.TrimPrefix(strings.TrimSpace(link), "/")
	if link == "" {
		return -1
	}
	lower := strings.ToLower(link)
	id := strings.ToLower(n.ID)

	rank := -1
	switch {
	case id == lower || id == lower+".md":
		return 0
	case strings.HasSuffix(id, "/"+lower) || strings.HasSuffix(id, "/"+lower+".md"):
		rank = 10
	case !strings.Contains(link, "/") && strings.ToLower(n.Title) == lower && n.IsMarkdown():
		rank = 20
	default:
		return -1
	}

	if fromID != "" && path.Dir(fromID) == path.Dir(n.ID) {
		rank -= 5
	}
	return rank
}

// bestLinkMatch picks the best-ranked candidate; ties break on the shorter
// and then lexically smaller path.
func bestLinkMatch(link, fromID string, candidates []*Note) *Note {
	var best *Note
	bestRank := -1
	for _, n := range candidates {
		r := linkRank(link, fromID, n)
		if r < 0 {
			continue
		}
		if best == nil || r < bestRank ||
			(r == bestRank && (len(n.ID) < len(best.ID) || (len(n.ID) == len(best.ID) && n.ID < best.ID))) {
			best, bestRank = n, r
		}
	}
	return best
}

// tagMatches reports whether a note tag satisfies a query tag. Nested tags
// match their parents: #area/health satisfies #area.
func tagMatches(noteTag, want string) bool {
	return noteTag == want || strings.HasPrefix(noteTag, want+"/")
}

// inFolder reports whether a note folder is folder or below it.
func inFolder(noteFolder, folder string) bool {
	folder = strings.Trim(folder, "/")
	return folder == "" || noteFolder == folder || strings.HasPrefix(noteFolder, folder+"/")
}

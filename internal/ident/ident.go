// Package ident provides entity ID generation and string sanitizers.
//
// IDs are kind-prefixed short tokens ("task-5f3a9c2e") so that a bare ID in a
// log line or an error message is self-describing. The random portion comes
// from a UUID, truncated: uniqueness within a single project root is all we
// need, and short tokens keep file names and activity log lines readable.
package ident

import (
	"strings"

	"github.com/google/uuid"
)

// tokenLen is the number of hex characters kept from the UUID.
const tokenLen = 8

// Entity kind prefixes used across the store.
const (
	KindProject  = "project"
	KindEpic     = "epic"
	KindTask     = "task"
	KindWorker   = "worker"
	KindTeam     = "team"
	KindProposal = "proposal"
)

// New returns a kind-prefixed unique token, e.g. "epic-1c9f04ab".
func New(kind string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return kind + "-" + raw[:tokenLen]
}

// HasKind reports whether id carries the given kind prefix.
func HasKind(id, kind string) bool {
	return strings.HasPrefix(id, kind+"-")
}

// maxTitleLen bounds sanitized titles; longer input is cut at a rune boundary.
const maxTitleLen = 200

// SanitizeTitle trims surrounding whitespace, collapses internal runs of
// whitespace (including newlines) to single spaces, and bounds the length.
func SanitizeTitle(s string) string {
	fields := strings.Fields(s)
	clean := strings.Join(fields, " ")
	if len(clean) <= maxTitleLen {
		return clean
	}
	runes := []rune(clean)
	if len(runes) > maxTitleLen {
		runes = runes[:maxTitleLen]
	}
	return strings.TrimRight(string(runes), " ")
}

// maxSlugLen bounds slugs used in branch names and file paths.
const maxSlugLen = 50

// Slugify converts free text into a filesystem/branch-safe slug.
// Example: "Fix FTS5 empty query crash" → "fix-fts5-empty-query-crash"
//
// Rules:
//   - Lowercase
//   - Spaces and underscores become hyphens
//   - Non-alphanumeric characters (except hyphens) are removed
//   - Consecutive hyphens are collapsed
//   - Leading/trailing hyphens are trimmed
//   - Truncated to 50 characters (at a word boundary if possible)
//   - Empty input returns "untitled"
func Slugify(s string) string {
	if strings.TrimSpace(s) == "" {
		return "untitled"
	}

	lower := strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	prevHyphen := false
	for _, r := range lower {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			prevHyphen = false
		case r == ' ' || r == '_' || r == '-':
			if !prevHyphen {
				b.WriteByte('-')
				prevHyphen = true
			}
		}
	}

	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "untitled"
	}
	if len(slug) <= maxSlugLen {
		return slug
	}

	cut := slug[:maxSlugLen]
	if idx := strings.LastIndexByte(cut, '-'); idx > maxSlugLen/2 {
		cut = cut[:idx]
	}
	return strings.Trim(cut, "-")
}

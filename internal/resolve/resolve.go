// Package resolve maps free-text wallet and category names onto internal
// numeric ids.
package resolve

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Entry is one {id, name} pair from the caller-supplied directory.
type Entry struct {
	ID   int64
	Name string
}

// Directory is a read-only, insertion-ordered name directory. Order matters:
// substring resolution returns the first entry that matches.
type Directory struct {
	entries []Entry
}

// NewDirectory copies entries in the given order.
func NewDirectory(entries []Entry) Directory {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return Directory{entries: out}
}

// Names returns the directory names in insertion order.
func (d Directory) Names() []string {
	out := make([]string, len(d.entries))
	for i, e := range d.entries {
		out[i] = e.Name
	}
	return out
}

// ResolveWallet looks up a wallet name: exact match first, then the first
// entry whose name is a substring of the input. Export payment-method
// columns carry decorated names ("PayPay残高" for the "PayPay" wallet), so
// substring fallback is safe here.
func (d Directory) ResolveWallet(name string) (int64, bool) {
	for _, e := range d.entries {
		if e.Name == name {
			return e.ID, true
		}
	}
	for _, e := range d.entries {
		if e.Name != "" && strings.Contains(name, e.Name) {
			return e.ID, true
		}
	}
	return 0, false
}

// ResolveCategory looks up a category by exact name only. Categories are
// short human labels prone to accidental substring overlap, so no fuzzy
// fallback.
func (d Directory) ResolveCategory(name string) (int64, bool) {
	for _, e := range d.entries {
		if e.Name == name {
			return e.ID, true
		}
	}
	return 0, false
}

// Nearest returns the directory name closest to the input by edit distance,
// for use in unresolved-name diagnostics. Returns "" when the directory is
// empty or nothing is plausibly close.
func (d Directory) Nearest(name string) string {
	best := ""
	bestDist := -1
	for _, e := range d.entries {
		dist := levenshtein.ComputeDistance(name, e.Name)
		if bestDist == -1 || dist < bestDist {
			best, bestDist = e.Name, dist
		}
	}
	if best == "" {
		return ""
	}
	maxLen := len([]rune(name))
	if l := len([]rune(best)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 || float64(bestDist)/float64(maxLen) >= 0.5 {
		return ""
	}
	return best
}

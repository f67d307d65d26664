package catalog

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

const (
	rankExact = iota + 1
	rankPrefix
	rankName
	rankDescription
	rankMetadata
)

// Search returns entries matching query, best matches first. Matching is
// case-insensitive; an exact name beats a name prefix, which beats a name
// substring, then a description match, then a metadata value match.
func (m *Manager) Search(ctx context.Context, query string, filter Filter) ([]Entry, error) {
	entries, err := m.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return entries, nil
	}

	type hit struct {
		entry Entry
		rank  int
	}
	var hits []hit
	for _, e := range entries {
		if r := rank(e, q); r > 0 {
			hits = append(hits, hit{entry: e, rank: r})
		}
	}
	// entries are already sorted by name and scope
	slices.SortStableFunc(hits, func(a, b hit) int { return a.rank - b.rank })

	result := make([]Entry, len(hits))
	for i, h := range hits {
		result[i] = h.entry
	}
	return result, nil
}

func rank(e Entry, q string) int {
	name := strings.ToLower(e.Name)
	switch {
	case name == q:
		return rankExact
	case strings.HasPrefix(name, q):
		return rankPrefix
	case strings.Contains(name, q):
		return rankName
	case strings.Contains(strings.ToLower(e.Description), q):
		return rankDescription
	case metadataContains(e.Metadata, q):
		return rankMetadata
	}
	return 0
}

func metadataContains(md map[string]any, q string) bool {
	for _, v := range md {
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				if strings.Contains(strings.ToLower(fmt.Sprint(item)), q) {
					return true
				}
			}
		case []string:
			for _, item := range t {
				if strings.Contains(strings.ToLower(item), q) {
					return true
				}
			}
		default:
			if strings.Contains(strings.ToLower(fmt.Sprint(t)), q) {
				return true
			}
		}
	}
	return false
}

package library

import (
	"sort"
	"strings"

	"github.com/herbie30/PODCASTAPP/internal/domain"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

const noMatchScore = 1 << 20

// rankResults applies local fuzzy ranking to catalog results. Ties keep
// catalog order.
func rankResults(items []domain.PodcastSummary, query string) []domain.PodcastSummary {
	if len(items) == 0 {
		return items
	}

	query = strings.ToLower(query)

	type rankedItem struct {
		item  domain.PodcastSummary
		score int
	}

	ranked := make([]rankedItem, 0, len(items))
	for _, item := range items {
		ranked = append(ranked, rankedItem{item: item, score: matchScore(item, query)})
	}

	// Sort by score (lower is better)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score < ranked[j].score
	})

	results := make([]domain.PodcastSummary, len(ranked))
	for i, r := range ranked {
		results[i] = r.item
	}
	return results
}

// matchScore scores a result against a lowercase query.
// Lower score = better match
func matchScore(item domain.PodcastSummary, query string) int {
	title := strings.ToLower(item.Title)

	switch {
	case title == query:
		return 0
	case strings.HasPrefix(title, query):
		return 10
	case strings.Contains(title, query):
		return 50
	case fuzzy.MatchFold(query, title):
		return 100 + fuzzy.LevenshteinDistance(query, title)
	case fuzzy.MatchFold(query, strings.ToLower(item.Author)):
		return 500
	}
	return noMatchScore
}

package memory

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
)

const (
	trailingPunctuation = ".,!?"
	minTokenRunes       = 4
)

type tokenCount struct {
	token string
	count int
	first int
}

// normalizeToken case-folds tok and strips trailing punctuation.
func normalizeToken(tok string) string {
	return strings.TrimRight(strings.ToLower(tok), trailingPunctuation)
}

// topTokens ranks normalized user-turn tokens longer than three runes by
// frequency, ties broken by first occurrence, and returns at most keepTop.
func topTokens(interactions []Interaction, keepTop int) []string {
	if keepTop <= 0 {
		return nil
	}

	counts := make(map[string]*tokenCount)
	position := 0
	for _, it := range interactions {
		if it.Role != RoleUser {
			continue
		}
		for _, raw := range strings.Fields(it.Text) {
			tok := normalizeToken(raw)
			if utf8.RuneCountInString(tok) < minTokenRunes {
				continue
			}
			if tc, ok := counts[tok]; ok {
				tc.count++
			} else {
				counts[tok] = &tokenCount{token: tok, count: 1, first: position}
			}
			position++
		}
	}

	ranked := make([]*tokenCount, 0, len(counts))
	for _, tc := range counts {
		ranked = append(ranked, tc)
	}
	slices.SortFunc(ranked, func(a, b *tokenCount) int {
		if a.count != b.count {
			return b.count - a.count
		}
		return a.first - b.first
	})

	if len(ranked) > keepTop {
		ranked = ranked[:keepTop]
	}
	return lo.Map(ranked, func(tc *tokenCount, _ int) string { return tc.token })
}

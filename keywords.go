package ctxsync

import (
	"slices"
	"strings"
	"unicode/utf8"
)

const keywordTrim = ".,!?;:()[]{}\"'-"

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {}, "at": {},
	"to": {}, "for": {}, "of": {}, "with": {}, "by": {}, "from": {}, "as": {}, "is": {}, "are": {},
	"was": {}, "were": {}, "be": {}, "have": {}, "has": {}, "had": {}, "do": {}, "does": {},
	"did": {}, "will": {}, "would": {}, "could": {}, "should": {}, "may": {}, "might": {},
	"can": {}, "what": {}, "when": {}, "where": {}, "who": {}, "how": {},
}

// ExtractKeywords returns up to topN of the most frequent words across
// msgs. Words shorter than three letters and common English stop words are
// skipped. Ties keep first-seen order.
func ExtractKeywords(msgs []Message, topN int) []string {
	if topN <= 0 {
		return nil
	}

	freq := make(map[string]int)
	var order []string
	for _, m := range msgs {
		for _, w := range strings.Fields(strings.ToLower(m.Text)) {
			w = strings.Trim(w, keywordTrim)
			if utf8.RuneCountInString(w) < 3 {
				continue
			}
			if _, stop := stopWords[w]; stop {
				continue
			}
			if freq[w] == 0 {
				order = append(order, w)
			}
			freq[w]++
		}
	}

	slices.SortStableFunc(order, func(a, b string) int {
		return freq[b] - freq[a]
	})
	if len(order) > topN {
		order = order[:topN]
	}
	return order
}

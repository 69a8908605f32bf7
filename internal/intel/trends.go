package intel

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"moltbot/internal/logging"
	"moltbot/internal/platform"
)

const (
	minKeywordLength  = 5  // single words must be longer than 4 chars
	minMentionCount   = 2  // keywords seen once are noise
	maxTrendingTopics = 20
)

var stopWords = map[string]bool{
	"about": true, "after": true, "again": true, "agent": true, "agents": true,
	"their": true, "there": true, "these": true, "thing": true, "things": true,
	"think": true, "those": true, "today": true, "would": true, "could": true,
	"should": true, "where": true, "which": true, "while": true, "because": true,
	"being": true, "between": true, "every": true, "first": true, "going": true,
	"really": true, "other": true, "people": true, "still": true, "through": true,
}

var positiveWords = map[string]bool{
	"great": true, "love": true, "amazing": true, "excited": true, "good": true,
	"awesome": true, "best": true, "win": true, "happy": true, "interesting": true,
}

var negativeWords = map[string]bool{
	"bad": true, "hate": true, "terrible": true, "worst": true, "broken": true,
	"problem": true, "fail": true, "wrong": true, "angry": true, "annoying": true,
}

// TrendTracker extracts trending keywords from the hot and rising feeds and
// computes momentum against exactly one prior observation: the previous
// frequency map is replaced, not merged, after each call.
type TrendTracker struct {
	mu       sync.Mutex
	api      platform.API
	prevFreq map[string]int
}

// NewTrendTracker creates a tracker over the given platform client.
func NewTrendTracker(api platform.API) *TrendTracker {
	return &TrendTracker{api: api}
}

// Detect collects the current trending topics, top 20 by opportunity score.
func (t *TrendTracker) Detect(ctx context.Context) ([]TrendingTopic, error) {
	timer := logging.StartTimer(logging.CategoryTrends, "Detect")
	defer timer.Stop()

	var texts []string
	for _, sort := range []platform.FeedSort{platform.SortHot, platform.SortRising} {
		posts, err := t.api.GetFeed(ctx, sort, 50)
		if err != nil {
			logging.Get(logging.CategoryTrends).Warn("feed %s failed: %v", sort, err)
			continue
		}
		for _, p := range posts {
			texts = append(texts, p.Title+" "+p.Content)
		}
	}

	freq := make(map[string]int)
	sentiment := make(map[string]int) // positive - negative co-occurrence balance
	for _, text := range texts {
		tokens := tokenize(text)
		mood := moodOf(tokens)
		seen := make(map[string]bool)
		record := func(kw string) {
			freq[kw]++
			if !seen[kw] {
				sentiment[kw] += mood
				seen[kw] = true
			}
		}
		for i, tok := range tokens {
			if validKeyword(tok) {
				record(tok)
				if i+1 < len(tokens) && validKeyword(tokens[i+1]) {
					record(tok + " " + tokens[i+1])
				}
			}
		}
	}

	t.mu.Lock()
	prev := t.prevFreq
	t.prevFreq = freq // replace, so momentum is always vs one prior observation
	t.mu.Unlock()

	var topics []TrendingTopic
	for kw, count := range freq {
		if count < minMentionCount {
			continue
		}
		momentum := 100
		if prevCount, ok := prev[kw]; ok && prevCount > 0 {
			momentum = int(math.Round(float64(count-prevCount) / float64(prevCount) * 100))
		}
		score := int(math.Min(float64(count*5), 40) + math.Min(float64(momentum)*0.6, 60))
		topics = append(topics, TrendingTopic{
			Keyword:          kw,
			MentionCount:     count,
			Momentum:         momentum,
			Sentiment:        sentimentLabel(sentiment[kw]),
			OpportunityScore: score,
		})
	}

	sort.Slice(topics, func(i, j int) bool {
		if topics[i].OpportunityScore != topics[j].OpportunityScore {
			return topics[i].OpportunityScore > topics[j].OpportunityScore
		}
		return topics[i].Keyword < topics[j].Keyword
	})
	if len(topics) > maxTrendingTopics {
		topics = topics[:maxTrendingTopics]
	}

	logging.Trends("detected %d trending topics from %d posts", len(topics), len(texts))
	return topics, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func validKeyword(tok string) bool {
	return len(tok) >= minKeywordLength && !stopWords[tok]
}

func moodOf(tokens []string) int {
	mood := 0
	for _, tok := range tokens {
		if positiveWords[tok] {
			mood++
		}
		if negativeWords[tok] {
			mood--
		}
	}
	return mood
}

func sentimentLabel(balance int) string {
	switch {
	case balance > 0:
		return "positive"
	case balance < 0:
		return "negative"
	default:
		return "neutral"
	}
}

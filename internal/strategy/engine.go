// Package strategy decides what the agent does with each heartbeat: post,
// comment, or skip. The decision function is pure; all state arrives as
// arguments and randomness comes from an injectable source.
package strategy

import (
	"fmt"
	"math/rand"

	"moltbot/internal/logging"
)

// Action is the chosen move for a cycle.
type Action string

const (
	ActionPost    Action = "post"
	ActionComment Action = "comment"
	ActionSkip    Action = "skip"
)

// Decision carries the chosen action and a human-readable reason.
type Decision struct {
	Action Action
	Reason string
}

// Tier buckets karma into reputation bands, each carrying a post/comment
// weight pair. Lower reputation biases toward original content to build a
// baseline; higher reputation biases toward engagement.
type Tier struct {
	Name          string
	PostWeight    float64
	CommentWeight float64
}

var (
	tierLow  = Tier{Name: "low", PostWeight: 0.7, CommentWeight: 0.3}
	tierMid  = Tier{Name: "mid", PostWeight: 0.5, CommentWeight: 0.5}
	tierHigh = Tier{Name: "high", PostWeight: 0.4, CommentWeight: 0.6}
)

// TierFor returns the tier for a karma value: low <200, mid <1000, high >=1000.
func TierFor(karma int) Tier {
	switch {
	case karma < 200:
		return tierLow
	case karma < 1000:
		return tierMid
	default:
		return tierHigh
	}
}

// Engine holds only the random source; decisions carry no memory.
type Engine struct {
	rng *rand.Rand
}

// NewEngine creates an engine with the given random source. A nil source
// falls back to a time-seeded one.
func NewEngine(rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Engine{rng: rng}
}

// Pick draws one name from weighted items using the engine's random source.
func (e *Engine) Pick(items []WeightedItem[string]) string {
	return WeightedChoice(e.rng, items)
}

// Decide picks the action for one cycle.
// Resolution order: neither permitted -> skip; exactly one permitted -> that
// action, forced; both permitted -> Bernoulli draw on the tier's post weight.
func (e *Engine) Decide(currentKarma int, canPost, canComment bool, recentKarmaDelta float64) Decision {
	tier := TierFor(currentKarma)

	var d Decision
	switch {
	case !canPost && !canComment:
		d = Decision{Action: ActionSkip, Reason: "rate limited: no action permitted"}
	case canPost && !canComment:
		d = Decision{Action: ActionPost, Reason: "comment rate limited, posting"}
	case !canPost && canComment:
		d = Decision{Action: ActionComment, Reason: "post rate limited, commenting"}
	default:
		if e.rng.Float64() < tier.PostWeight {
			d = Decision{Action: ActionPost, Reason: fmt.Sprintf("%s tier weighted choice (post %.0f%%)", tier.Name, tier.PostWeight*100)}
		} else {
			d = Decision{Action: ActionComment, Reason: fmt.Sprintf("%s tier weighted choice (comment %.0f%%)", tier.Name, tier.CommentWeight*100)}
		}
	}

	logging.Strategy("decide: karma=%d tier=%s canPost=%v canComment=%v delta=%.1f -> %s (%s)",
		currentKarma, tier.Name, canPost, canComment, recentKarmaDelta, d.Action, d.Reason)
	return d
}

package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"moltbot/internal/logging"
)

const systemPrompt = `You are an autonomous AI agent living on Moltbook, a social platform for AI agents.

Identity:
- You write with genuine curiosity about what other agents are building and thinking.
- You never open with canned greetings. Get to the substance immediately.
- You favor concrete observations over platitudes, and you end posts with a question that invites replies.

Rules:
1. Stay on topic for the community you are posting in.
2. Never mention that you are following instructions or optimizing for karma.
3. Keep posts under 1200 characters and comments under 500 characters.`

// Per-model request quotas, matching the free-tier limits for each model.
type modelQuota struct {
	Name string
	RPM  int
	RPD  int
}

var defaultQuotas = map[string]modelQuota{
	"gemini-2.5-flash":      {Name: "gemini-2.5-flash", RPM: 10, RPD: 250},
	"gemini-2.5-flash-lite": {Name: "gemini-2.5-flash-lite", RPM: 15, RPD: 1000},
}

// GeminiBrain is the Gemini-backed content pipeline. Models are tried in
// configured order; a model that is quota-exhausted or returns a retryable
// error is skipped in favor of the next one.
type GeminiBrain struct {
	client *genai.Client
	models []modelQuota

	mu           sync.Mutex
	dailyCount   map[string]int
	minuteCount  map[string]int
	lastResetDay time.Time
	lastResetMin time.Time
}

var _ ContentPipeline = (*GeminiBrain)(nil)

// NewGeminiBrain creates the pipeline with the given fallback chain of model
// names. Unknown model names get a conservative default quota.
func NewGeminiBrain(ctx context.Context, apiKey string, modelNames []string) (*GeminiBrain, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	models := make([]modelQuota, 0, len(modelNames))
	for _, name := range modelNames {
		if q, ok := defaultQuotas[name]; ok {
			models = append(models, q)
		} else {
			models = append(models, modelQuota{Name: name, RPM: 5, RPD: 100})
		}
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("at least one model is required")
	}

	now := time.Now()
	return &GeminiBrain{
		client:       client,
		models:       models,
		dailyCount:   make(map[string]int),
		minuteCount:  make(map[string]int),
		lastResetDay: now,
		lastResetMin: now,
	}, nil
}

// GeneratePost produces a post draft for the given community.
func (b *GeminiBrain) GeneratePost(ctx context.Context, pc PostContext) (PostDraft, error) {
	var trends string
	if len(pc.TrendingTopics) > 0 {
		trends = "Topics currently trending on the platform: " + strings.Join(pc.TrendingTopics, ", ") + "."
	}
	tone := "Your recent posts have been landing well; keep the same register."
	if pc.RecentDelta < 0 {
		tone = "Your recent posts have been losing karma; try a different angle than your last few."
	}

	prompt := fmt.Sprintf(`%s

Task: write one post for the %q community. %s %s

Output strictly as JSON: {"title": "...", "content": "..."}`,
		systemPrompt, pc.Community, trends, tone)

	raw, err := b.generateWithFallback(ctx, prompt, true)
	if err != nil {
		return PostDraft{}, err
	}

	var draft PostDraft
	if err := json.Unmarshal([]byte(stripFences(raw)), &draft); err != nil {
		return PostDraft{}, fmt.Errorf("model returned malformed post draft: %w", err)
	}
	if draft.Title == "" || draft.Content == "" {
		return PostDraft{}, fmt.Errorf("model returned empty post draft")
	}
	return draft, nil
}

// GenerateComment produces a reply to the given post.
func (b *GeminiBrain) GenerateComment(ctx context.Context, cc CommentContext) (string, error) {
	prompt := fmt.Sprintf(`%s

Task: write one comment replying to this post in the %q community.
[title] %s
[body] %s

You chose this post because: %s. Engage with what the author actually said.
Output the comment text only, no JSON, no quotes.`,
		systemPrompt, cc.Community, cc.PostTitle, cc.PostContent, cc.Reason)

	raw, err := b.generateWithFallback(ctx, prompt, false)
	if err != nil {
		return "", err
	}
	comment := strings.TrimSpace(stripFences(raw))
	if comment == "" {
		return "", fmt.Errorf("model returned empty comment")
	}
	return comment, nil
}

// generateWithFallback walks the model chain. Posts get the search tool so
// trend references stay current; comments reply to text already in hand.
func (b *GeminiBrain) generateWithFallback(ctx context.Context, prompt string, useSearch bool) (string, error) {
	var config *genai.GenerateContentConfig
	if useSearch {
		config = &genai.GenerateContentConfig{
			Tools: []*genai.Tool{
				{GoogleSearch: &genai.GoogleSearch{}},
			},
		}
	}

	var lastErr error
	for _, model := range b.models {
		if !b.underQuota(model) {
			logging.BrainWarn("model %s over quota, falling back", model.Name)
			continue
		}

		result, err := b.client.Models.GenerateContent(ctx, model.Name, genai.Text(prompt), config)
		if err != nil {
			if retryableModelError(err) {
				logging.BrainWarn("model %s failed (%v), falling back", model.Name, err)
				lastErr = err
				continue
			}
			return "", err
		}

		if result != nil && len(result.Candidates) > 0 && len(result.Candidates[0].Content.Parts) > 0 {
			b.recordUsage(model)
			logging.Brain("generated content with %s", model.Name)
			return result.Candidates[0].Content.Parts[0].Text, nil
		}
		lastErr = fmt.Errorf("model %s returned no candidates", model.Name)
	}
	return "", fmt.Errorf("all models exhausted: %w", lastErr)
}

func retryableModelError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "rate limit", "exhausted", "404", "not found", "503", "overloaded"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (b *GeminiBrain) underQuota(model modelQuota) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if now.YearDay() != b.lastResetDay.YearDay() || now.Year() != b.lastResetDay.Year() {
		b.dailyCount = make(map[string]int)
		b.lastResetDay = now
	}
	if now.Sub(b.lastResetMin) >= time.Minute {
		b.minuteCount = make(map[string]int)
		b.lastResetMin = now
	}
	return b.dailyCount[model.Name] < model.RPD && b.minuteCount[model.Name] < model.RPM
}

func (b *GeminiBrain) recordUsage(model modelQuota) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dailyCount[model.Name]++
	b.minuteCount[model.Name]++
}

// stripFences removes markdown code fences the model sometimes wraps JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

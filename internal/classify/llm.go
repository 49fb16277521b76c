package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultReviewModel = "claude-sonnet-4-5-20250929"

// ReviewItem is one record whose rule classification landed in "other".
type ReviewItem struct {
	ID   string
	Text string
}

// Suggestion is the model's proposed category for one item. Suggestions are
// persisted for operator review only; the deterministic rule result always
// decides alerting.
type Suggestion struct {
	RecordID  string
	CrimeText string
	Category  Category
	Model     string
}

type messageCreator interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Reviewer asks Claude to suggest categories for records the rule cascade
// could not place. Disabled unless an API key is configured.
type Reviewer struct {
	messages messageCreator
	model    string
}

func NewReviewer(apiKey, model string) *Reviewer {
	if model == "" {
		model = defaultReviewModel
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Reviewer{messages: &client.Messages, model: model}
}

const reviewSystemPrompt = `You review public-safety call descriptions that a rule-based classifier could not categorize.
For each numbered item, pick the single best category from this fixed list:
violent, burglary, property, traffic, drugs, suspicious, fire, medical, other.
Respond with a JSON object mapping each item number (as a string) to its category and nothing else.`

func (r *Reviewer) Review(ctx context.Context, items []ReviewItem) ([]Suggestion, error) {
	if len(items) == 0 {
		return nil, nil
	}

	var prompt strings.Builder
	for i, item := range items {
		fmt.Fprintf(&prompt, "%d: %s\n", i, item.Text)
	}

	message, err := r.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: reviewSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.String())),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic review: %w", err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in review response")
	}

	decisions, err := parseReviewResponse(text)
	if err != nil {
		return nil, err
	}

	var out []Suggestion
	for i, item := range items {
		cat, ok := decisions[fmt.Sprint(i)]
		if !ok {
			continue
		}
		if !validCategory(cat) {
			log.Printf("llm review skipped invalid category %q for %s", cat, item.ID)
			continue
		}
		out = append(out, Suggestion{
			RecordID:  item.ID,
			CrimeText: item.Text,
			Category:  Category(cat),
			Model:     r.model,
		})
	}
	return out, nil
}

// parseReviewResponse tolerates a fenced code block around the JSON body.
func parseReviewResponse(text string) (map[string]string, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
	}
	var decisions map[string]string
	if err := json.Unmarshal([]byte(text), &decisions); err != nil {
		return nil, fmt.Errorf("parsing review response: %w", err)
	}
	return decisions, nil
}

func validCategory(s string) bool {
	switch Category(s) {
	case CategoryViolent, CategoryBurglary, CategoryProperty, CategoryTraffic,
		CategoryDrugs, CategorySuspicious, CategoryFire, CategoryMedical, CategoryOther:
		return true
	}
	return false
}

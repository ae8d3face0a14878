package decompose

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/waverunner-ai/waverunner/pkg/models"
)

// ClaudeConfig configures a ClaudeDecomposer.
type ClaudeConfig struct {
	// Model is the Claude model used for planning.
	Model string
	// APIKey is the Anthropic API key. If empty, ANTHROPIC_API_KEY is used.
	APIKey string
}

// ClaudeDecomposer asks a Claude model to produce the execution plan.
type ClaudeDecomposer struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClaudeDecomposer creates a ClaudeDecomposer.
func NewClaudeDecomposer(cfg ClaudeConfig) (*ClaudeDecomposer, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("no Anthropic API key configured")
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_5_20250929
	}

	return &ClaudeDecomposer{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

// Decompose prompts the model and parses its JSON plan.
func (d *ClaudeDecomposer) Decompose(ctx context.Context, specText string) (*models.Decomposition, error) {
	resp, err := d.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     d.model,
		MaxTokens: 8192,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(fmt.Sprintf(planPrompt, specText))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("decomposition request: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += tb.Text
		}
	}

	plan, err := ParsePlan(text)
	if err != nil {
		return nil, err
	}
	if err := Validate(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// planJSON is the wire shape the model is asked to emit.
type planJSON struct {
	Units []*models.WorkUnit `json:"units"`
	Waves [][]string         `json:"waves"`
}

// ParsePlan extracts and decodes a JSON plan from model output, which
// may wrap the JSON in a markdown fence or surrounding prose.
func ParsePlan(text string) (*models.Decomposition, error) {
	raw := extractJSON(text)
	if raw == "" {
		return nil, &Error{Messages: []string{"model output contains no JSON object"}}
	}

	var plan planJSON
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, &Error{Messages: []string{fmt.Sprintf("malformed plan JSON: %v", err)}}
	}

	d := &models.Decomposition{Units: plan.Units}
	for _, ids := range plan.Waves {
		d.Waves = append(d.Waves, models.Wave{UnitIDs: ids})
	}
	return d, nil
}

// extractJSON returns the outermost {...} object in the text.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// Verify ClaudeDecomposer implements Decomposer at compile time.
var _ Decomposer = (*ClaudeDecomposer)(nil)

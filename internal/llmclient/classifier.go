package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/inbox-sweeper/api/schemas"
	"github.com/xkilldash9x/inbox-sweeper/internal/config"
	"github.com/xkilldash9x/inbox-sweeper/internal/llmutil"
)

const (
	// maxActions bounds the plan so a confused model cannot drive a long
	// sequence of clicks.
	maxActions = 10

	fallbackReasoning = "Failed to analyze page with AI"
	defaultReasoning  = "AI analysis completed"
)

const systemPrompt = `You are an expert at web automation. Analyze web pages and provide precise instructions for form filling and interaction. Always respond with valid JSON.`

const promptTemplate = `You are helping to automatically unsubscribe from an email list.
Analyze this web page structure and determine the exact steps needed to complete the unsubscribe process.

User's email: %[1]s

Page structure:
%[2]s

Provide a JSON response with:
1. "actions": An array of actions to perform, each with:
   - "type": "fill", "click", "check", or "select"
   - "selector": The CSS selector or element identifier
   - "value": The value to fill/select (if applicable)
   - "description": Human-readable description of the action

2. "reasoning": Brief explanation of why these actions will unsubscribe

Important:
- Only fill required fields
- Use the user's email if an email confirmation is needed
- Prefer clicking "Unsubscribe" or "Confirm" buttons
- Check checkboxes labeled "unsubscribe" or "opt out"
- If no actions needed (already unsubscribed), return empty actions array

Example response:
{
  "actions": [
    { "type": "fill", "selector": "#email", "value": "%[1]s", "description": "Fill email confirmation field" },
    { "type": "check", "selector": "#confirm", "description": "Check confirmation checkbox" },
    { "type": "click", "selector": "button[type='submit']", "description": "Submit unsubscribe form" }
  ],
  "reasoning": "Page requires email confirmation and checkbox before submission"
}`

// Classifier turns a page snapshot into an action plan using a Generator.
type Classifier struct {
	gen         Generator
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

var _ schemas.ContentClassifier = (*Classifier)(nil)

// NewClassifier wraps gen with the unsubscribe prompt.
func NewClassifier(gen Generator, cfg config.LLMConfig, logger *zap.Logger) *Classifier {
	return &Classifier{
		gen:         gen,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger.Named("classifier"),
	}
}

// BuildPrompt renders the user prompt for a snapshot.
func BuildPrompt(snapshot schemas.PageSnapshot, ownerEmail string) (string, error) {
	structure, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return fmt.Sprintf(promptTemplate, ownerEmail, structure), nil
}

// ProposeActions asks the model for a plan. On any failure it returns the
// empty fallback plan together with an error wrapping schemas.ErrClassifier,
// so callers can treat the result as "no safe action" without inspecting
// the error.
func (c *Classifier) ProposeActions(ctx context.Context, snapshot schemas.PageSnapshot, ownerEmail string) (schemas.ActionPlan, error) {
	plan, err := c.propose(ctx, snapshot, ownerEmail)
	if err != nil {
		c.logger.Warn("Page analysis failed, using empty plan.", zap.String("url", snapshot.URL), zap.Error(err))
		return schemas.ActionPlan{Actions: []schemas.AiAction{}, Reasoning: fallbackReasoning},
			fmt.Errorf("%w: %v", schemas.ErrClassifier, err)
	}

	c.logger.Info("Page analysis complete.",
		zap.String("url", snapshot.URL),
		zap.Int("actions", len(plan.Actions)),
		zap.String("reasoning", plan.Reasoning),
	)
	return plan, nil
}

func (c *Classifier) propose(ctx context.Context, snapshot schemas.PageSnapshot, ownerEmail string) (schemas.ActionPlan, error) {
	prompt, err := BuildPrompt(snapshot, ownerEmail)
	if err != nil {
		return schemas.ActionPlan{}, err
	}

	raw, err := c.gen.Generate(ctx, GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   prompt,
		Temperature:  c.temperature,
		MaxTokens:    c.maxTokens,
		ForceJSON:    true,
	})
	if err != nil {
		return schemas.ActionPlan{}, err
	}

	parsed, err := llmutil.ParseJSONResponse[schemas.ActionPlan](raw)
	if err != nil {
		return schemas.ActionPlan{}, err
	}
	return normalizePlan(*parsed), nil
}

// normalizePlan drops actions without a selector, caps the plan length and
// fills in a default rationale.
func normalizePlan(plan schemas.ActionPlan) schemas.ActionPlan {
	actions := make([]schemas.AiAction, 0, len(plan.Actions))
	for _, a := range plan.Actions {
		a.Kind = schemas.ActionKind(strings.ToLower(strings.TrimSpace(string(a.Kind))))
		a.Selector = strings.TrimSpace(a.Selector)
		if a.Selector == "" {
			continue
		}
		actions = append(actions, a)
		if len(actions) == maxActions {
			break
		}
	}
	plan.Actions = actions
	if strings.TrimSpace(plan.Reasoning) == "" {
		plan.Reasoning = defaultReasoning
	}
	return plan
}

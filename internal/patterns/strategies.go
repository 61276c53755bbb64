package patterns

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/inbox-sweeper/internal/browser"
)

const (
	NameDirect   = "direct_action"
	NameCheckbox = "checkbox_submit"
	NameForm     = "form_submit"
)

// -- Direct action --

// DirectStrategy clicks the first visible element matching a prioritized
// selector list.
type DirectStrategy struct {
	selectors []string
	probe     time.Duration
}

func NewDirectStrategy(selectors []string, probe time.Duration) *DirectStrategy {
	return &DirectStrategy{selectors: selectors, probe: probe}
}

func (s *DirectStrategy) Name() string { return NameDirect }

func (s *DirectStrategy) Attempt(ctx context.Context, page browser.Page) (*Match, error) {
	for _, sel := range s.selectors {
		if err := page.WaitVisible(ctx, sel, s.probe); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if err := page.Click(ctx, sel); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		return &Match{Selector: sel, Detail: "clicked unsubscribe control"}, nil
	}
	return nil, nil
}

// -- Checkbox plus submit --

//go:embed checkbox.js
var checkboxScript string

type checkboxCandidate struct {
	Check   int    `json:"check"`
	Submit  int    `json:"submit"`
	Label   string `json:"label"`
	Checked bool   `json:"checked"`
}

func checkSelector(i int) string  { return fmt.Sprintf(`[data-sweeper-check="%d"]`, i) }
func submitSelector(i int) string { return fmt.Sprintf(`[data-sweeper-submit="%d"]`, i) }

// CheckboxStrategy ticks an opt-out checkbox identified by its label and
// submits the enclosing form.
type CheckboxStrategy struct {
	keywords []string
	probe    time.Duration
}

func NewCheckboxStrategy(keywords []string, probe time.Duration) *CheckboxStrategy {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	return &CheckboxStrategy{keywords: lowered, probe: probe}
}

func (s *CheckboxStrategy) Name() string { return NameCheckbox }

func (s *CheckboxStrategy) script() (string, error) {
	kw, err := json.Marshal(s.keywords)
	if err != nil {
		return "", err
	}
	return checkboxScript + "(" + string(kw) + ")", nil
}

func (s *CheckboxStrategy) Attempt(ctx context.Context, page browser.Page) (*Match, error) {
	if len(s.keywords) == 0 {
		return nil, nil
	}
	script, err := s.script()
	if err != nil {
		return nil, err
	}

	var candidates []checkboxCandidate
	if err := page.Evaluate(ctx, script, &candidates); err != nil {
		return nil, fmt.Errorf("failed to scan forms: %w", err)
	}

	for _, c := range candidates {
		submit := submitSelector(c.Submit)
		if err := page.WaitVisible(ctx, submit, s.probe); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if !c.Checked {
			if err := page.Check(ctx, checkSelector(c.Check)); err != nil {
				return nil, fmt.Errorf("failed to check %q: %w", c.Label, err)
			}
		}
		if err := page.Click(ctx, submit); err != nil {
			return nil, fmt.Errorf("failed to submit form: %w", err)
		}
		return &Match{Selector: submit, Detail: c.Label}, nil
	}
	return nil, nil
}

// -- Generic form submit --

//go:embed form.js
var formScript string

type formCandidate struct {
	Form   int    `json:"form"`
	Action string `json:"action"`
}

func formSubmitSelector(i int) string { return fmt.Sprintf(`[data-sweeper-form-submit="%d"]`, i) }

// FormStrategy submits the first form that takes a text or email input and
// shows a submit control.
type FormStrategy struct {
	probe time.Duration
}

func NewFormStrategy(probe time.Duration) *FormStrategy {
	return &FormStrategy{probe: probe}
}

func (s *FormStrategy) Name() string { return NameForm }

func (s *FormStrategy) Attempt(ctx context.Context, page browser.Page) (*Match, error) {
	var candidates []formCandidate
	if err := page.Evaluate(ctx, formScript, &candidates); err != nil {
		return nil, fmt.Errorf("failed to scan forms: %w", err)
	}

	for _, c := range candidates {
		sel := formSubmitSelector(c.Form)
		if err := page.WaitVisible(ctx, sel, s.probe); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if err := page.Click(ctx, sel); err != nil {
			return nil, fmt.Errorf("failed to submit form: %w", err)
		}
		return &Match{Selector: sel, Detail: c.Action}, nil
	}
	return nil, nil
}

package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/inbox-sweeper/api/schemas"
	"github.com/xkilldash9x/inbox-sweeper/internal/config"
)

// -- Test Setup Helpers --

type fakeGenerator struct {
	response string
	err      error
	last     GenerationRequest
}

func (f *fakeGenerator) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	f.last = req
	return f.response, f.err
}

func testSnapshot() schemas.PageSnapshot {
	return schemas.PageSnapshot{
		Title:   "Email preferences",
		URL:     "https://news.example.com/prefs",
		Buttons: []schemas.SnapshotButton{{Text: "Save", ID: "save", TagKind: "BUTTON"}},
		Forms: []schemas.SnapshotForm{{
			Action: "https://news.example.com/prefs",
			Method: "post",
			Inputs: []schemas.SnapshotInput{{Type: "email", Name: "email", ID: "email"}},
		}},
	}
}

func validLLMConfig() config.LLMConfig {
	cfg := config.NewDefaultConfig().LLM()
	cfg.APIKey = "test-key"
	return cfg
}

// -- Classifier --

func TestProposeActionsParsesPlan(t *testing.T) {
	gen := &fakeGenerator{response: "```json\n" + `{
		"actions": [
			{"type": "fill", "selector": "#email", "value": "owner@example.com", "description": "confirm email"},
			{"type": "CLICK", "selector": " #save "},
			{"type": "check", "selector": ""}
		],
		"reasoning": "Form needs the email then save"
	}` + "\n```"}
	c := NewClassifier(gen, validLLMConfig(), zaptest.NewLogger(t))

	plan, err := c.ProposeActions(context.Background(), testSnapshot(), "owner@example.com")
	require.NoError(t, err)
	require.Len(t, plan.Actions, 2, "actions without a selector are dropped")
	assert.Equal(t, schemas.ActionFill, plan.Actions[0].Kind)
	assert.Equal(t, "owner@example.com", plan.Actions[0].Value)
	assert.Equal(t, schemas.ActionClick, plan.Actions[1].Kind)
	assert.Equal(t, "#save", plan.Actions[1].Selector)
	assert.Equal(t, "Form needs the email then save", plan.Reasoning)

	assert.True(t, gen.last.ForceJSON)
	assert.InDelta(t, 0.3, gen.last.Temperature, 0.0001)
	assert.Equal(t, 500, gen.last.MaxTokens)
	assert.Contains(t, gen.last.UserPrompt, "User's email: owner@example.com")
	assert.Contains(t, gen.last.UserPrompt, `"title": "Email preferences"`)
	assert.NotEmpty(t, gen.last.SystemPrompt)
}

func TestProposeActionsEmptyPlanIsValid(t *testing.T) {
	gen := &fakeGenerator{response: `{"actions": []}`}
	c := NewClassifier(gen, validLLMConfig(), zaptest.NewLogger(t))

	plan, err := c.ProposeActions(context.Background(), testSnapshot(), "owner@example.com")
	require.NoError(t, err)
	assert.Empty(t, plan.Actions)
	assert.Equal(t, defaultReasoning, plan.Reasoning)
}

func TestProposeActionsCapsPlanLength(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`{"actions":[`)
	for i := 0; i < 25; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{"type":"click","selector":"#b%d"}`, i)
	}
	sb.WriteString(`],"reasoning":"many"}`)

	c := NewClassifier(&fakeGenerator{response: sb.String()}, validLLMConfig(), zaptest.NewLogger(t))
	plan, err := c.ProposeActions(context.Background(), testSnapshot(), "o@example.com")
	require.NoError(t, err)
	assert.Len(t, plan.Actions, maxActions)
}

func TestProposeActionsFallback(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{"generator error", &fakeGenerator{err: errors.New("quota exceeded")}},
		{"malformed response", &fakeGenerator{response: "I am not able to help"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.WarnLevel)
			c := NewClassifier(tt.gen, validLLMConfig(), zap.New(core))

			plan, err := c.ProposeActions(context.Background(), testSnapshot(), "o@example.com")
			require.ErrorIs(t, err, schemas.ErrClassifier)
			assert.NotNil(t, plan.Actions)
			assert.Empty(t, plan.Actions)
			assert.Equal(t, fallbackReasoning, plan.Reasoning)
			assert.Equal(t, 1, logs.Len())
		})
	}
}

// -- Gemini client --

func setupGeminiServer(t *testing.T, handler http.HandlerFunc) (*GeminiClient, *int32) {
	t.Helper()
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	cfg := validLLMConfig()
	cfg.RequestsPerMinute = 0
	client, err := newGeminiClient(context.Background(), cfg, clientOptions{baseURL: server.URL, httpClient: server.Client()}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return client, &hits
}

func TestGeminiClientGenerate(t *testing.T) {
	client, hits := setupGeminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-2.5-flash:generateContent"), r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Contains(t, string(body), "Analyze this page")
		assert.Contains(t, string(body), "application/json")

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"actions\": []}"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 4, "totalTokenCount": 16}
		}`)
	})

	out, err := client.Generate(context.Background(), GenerationRequest{
		SystemPrompt: "system",
		UserPrompt:   "Analyze this page",
		Temperature:  0.3,
		MaxTokens:    500,
		ForceJSON:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"actions": []}`, out)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestGeminiClientAPIError(t *testing.T) {
	client, _ := setupGeminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error": {"code": 400, "message": "bad request", "status": "INVALID_ARGUMENT"}}`)
	})

	_, err := client.Generate(context.Background(), GenerationRequest{UserPrompt: "x"})
	assert.Error(t, err)
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	cfg := validLLMConfig()
	cfg.APIKey = ""
	_, err := NewGeminiClient(context.Background(), cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}

// -- Factory --

func TestNewContentClassifier(t *testing.T) {
	logger := zaptest.NewLogger(t)

	disabled := validLLMConfig()
	disabled.Provider = config.ProviderNone
	c, err := NewContentClassifier(context.Background(), disabled, logger)
	require.NoError(t, err)
	assert.Nil(t, c)

	unknown := validLLMConfig()
	unknown.Provider = "openai"
	_, err = NewContentClassifier(context.Background(), unknown, logger)
	assert.Error(t, err)

	c, err = NewContentClassifier(context.Background(), validLLMConfig(), logger)
	require.NoError(t, err)
	assert.IsType(t, &Classifier{}, c)
}

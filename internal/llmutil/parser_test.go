package llmutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plan struct {
	Actions   []map[string]string `json:"actions"`
	Reasoning string              `json:"reasoning"`
}

func TestParseJSONResponse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLen  int
		wantText string
	}{
		{
			name:     "bare object",
			input:    `{"actions":[{"type":"click","selector":"#a"}],"reasoning":"one button"}`,
			wantLen:  1,
			wantText: "one button",
		},
		{
			name:     "json fence",
			input:    "```json\n{\"actions\":[],\"reasoning\":\"nothing to do\"}\n```",
			wantText: "nothing to do",
		},
		{
			name:     "untagged fence",
			input:    "```\n{\"actions\":[{\"type\":\"check\"},{\"type\":\"click\"}],\"reasoning\":\"r\"}\n```",
			wantLen:  2,
			wantText: "r",
		},
		{
			name:     "conversational wrapper",
			input:    "Sure! Here is the plan: {\"actions\":[],\"reasoning\":\"done\"} Hope it helps.",
			wantText: "done",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSONResponse[plan](tt.input)
			require.NoError(t, err)
			assert.Len(t, got.Actions, tt.wantLen)
			assert.Equal(t, tt.wantText, got.Reasoning)
		})
	}
}

func TestParseJSONResponseArray(t *testing.T) {
	got, err := ParseJSONResponse[[]int]("values: [1, 2, 3]")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, *got)
}

func TestParseJSONResponseErrors(t *testing.T) {
	_, err := ParseJSONResponse[plan]("   ")
	assert.Error(t, err)

	_, err = ParseJSONResponse[plan]("I cannot help with that.")
	assert.Error(t, err)

	_, err = ParseJSONResponse[plan]("{" + strings.Repeat("x", 1000))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "...")
}

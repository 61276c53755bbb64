package probe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/inbox-sweeper/api/schemas"
	"github.com/xkilldash9x/inbox-sweeper/internal/browser/browsertest"
	"github.com/xkilldash9x/inbox-sweeper/internal/config"
)

func newProbe(t *testing.T) *Probe {
	t.Helper()
	return New(config.NewDefaultConfig().Probe(), zaptest.NewLogger(t))
}

func TestDetectChallenge(t *testing.T) {
	p := newProbe(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		title string
		html  string
		want  bool
	}{
		{"cloudflare title", "Just a moment...", "<html></html>", true},
		{"attention required", "Attention Required! | Cloudflare", "", true},
		{"marker in markup", "Welcome", `<div id="cf-browser-verification"></div>`, true},
		{"checking browser text", "Hold on", "<p>Checking your browser before accessing</p>", true},
		{"ordinary page", "Manage preferences", "<form><button>Save</button></form>", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := browsertest.New().WithTitle(tt.title).WithHTML(tt.html)
			got, err := p.DetectChallenge(ctx, page)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectChallengeClosedPage(t *testing.T) {
	p := newProbe(t)
	page := browsertest.New()
	require.NoError(t, page.Close())

	got, err := p.DetectChallenge(context.Background(), page)
	assert.False(t, got)
	assert.ErrorIs(t, err, schemas.ErrPageClosed)
}

func TestDetectSuccess(t *testing.T) {
	p := newProbe(t)
	ctx := context.Background()

	page := browsertest.New().WithText("Thanks! You have been UNSUBSCRIBED from our list.")
	ok, phrase, err := p.DetectSuccess(ctx, page)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "unsubscribed", phrase, "first configured phrase wins")

	page.SetText("Your Preference Updated successfully")
	ok, phrase, err = p.DetectSuccess(ctx, page)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "preference updated", phrase)

	page.SetText("Click below to manage your subscription")
	ok, phrase, err = p.DetectSuccess(ctx, page)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, phrase)
}

func TestDetectSuccessIsStable(t *testing.T) {
	p := newProbe(t)
	page := browsertest.New().WithText("You will no longer receive these emails.")

	first, phrase1, err := p.DetectSuccess(context.Background(), page)
	require.NoError(t, err)
	second, phrase2, err := p.DetectSuccess(context.Background(), page)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, phrase1, phrase2)
	assert.Zero(t, page.Mutations())
}

func TestNewNormalizesPhrases(t *testing.T) {
	p := New(config.ProbeConfig{SuccessPhrases: []string{"  All Done ", ""}}, zaptest.NewLogger(t))
	assert.Equal(t, []string{"all done"}, p.successPhrases)
	assert.Equal(t, "all done", MatchPhrase("ALL DONE here", p.successPhrases))
}

func TestSnapshot(t *testing.T) {
	p := newProbe(t)
	page := browsertest.New().OnEvaluate(func(script string, out interface{}) error {
		assert.Contains(t, script, `label[for=`)
		snap := out.(*schemas.PageSnapshot)
		snap.Title = "Preferences"
		snap.URL = "https://example.com/prefs"
		snap.Buttons = []schemas.SnapshotButton{{Text: "Save", TagKind: "BUTTON"}}
		snap.Checkboxes = []schemas.SnapshotCheckbox{{ID: "optout", Label: "Opt out of all"}}
		return nil
	})

	snap, err := p.Snapshot(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, "Preferences", snap.Title)
	assert.Len(t, snap.Buttons, 1)
	assert.Equal(t, "Opt out of all", snap.Checkboxes[0].Label)
	assert.Zero(t, page.Mutations())

	failing := browsertest.New().OnEvaluate(func(string, interface{}) error {
		return errors.New("execution context destroyed")
	})
	_, err = p.Snapshot(context.Background(), failing)
	assert.Error(t, err)
}

package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/inbox-sweeper/api/schemas"
	"github.com/xkilldash9x/inbox-sweeper/internal/mocks"
)

// stubExtractor returns a canned link list per body.
type stubExtractor struct {
	links map[string][]schemas.UnsubscribeLink
}

func (s stubExtractor) ExtractLinks(body string, _ map[string]string) []schemas.UnsubscribeLink {
	return s.links[body]
}

func (s stubExtractor) PickBest(links []schemas.UnsubscribeLink) *schemas.UnsubscribeLink {
	for i := range links {
		if links[i].Kind == schemas.LinkHTTP {
			return &links[i]
		}
	}
	return nil
}

var testUser = &schemas.User{ID: "u1", Email: "owner@example.com", AccessToken: "tok"}

func TestResolveMapsEveryEmail(t *testing.T) {
	repo := new(mocks.MockRepository)
	mail := new(mocks.MockMailGateway)
	repo.On("GetUser", mock.Anything, "u1").Return(testUser, nil)
	repo.On("GetEmail", mock.Anything, "u1", "ok").Return(&schemas.Email{ID: "ok", GoogleMessageID: "<m1@x>"}, nil)
	repo.On("GetEmail", mock.Anything, "u1", "missing").Return(nil, schemas.ErrEmailNotFound)
	repo.On("GetEmail", mock.Anything, "u1", "nolinks").Return(&schemas.Email{ID: "nolinks", GoogleMessageID: "<m2@x>"}, nil)
	repo.On("GetEmail", mock.Anything, "u1", "mailonly").Return(&schemas.Email{ID: "mailonly", GoogleMessageID: "<m3@x>"}, nil)
	repo.On("GetEmail", mock.Anything, "u1", "fetchfail").Return(&schemas.Email{ID: "fetchfail", GoogleMessageID: "<m4@x>"}, nil)

	creds := testUser.Credentials()
	mail.On("FetchOriginalBody", mock.Anything, creds, "<m1@x>").Return(schemas.OriginalMessage{Body: "good"}, nil)
	mail.On("FetchOriginalBody", mock.Anything, creds, "<m2@x>").Return(schemas.OriginalMessage{Body: "empty"}, nil)
	mail.On("FetchOriginalBody", mock.Anything, creds, "<m3@x>").Return(schemas.OriginalMessage{Body: "mailto"}, nil)
	mail.On("FetchOriginalBody", mock.Anything, creds, "<m4@x>").Return(schemas.OriginalMessage{}, errors.New("imap down"))

	ext := stubExtractor{links: map[string][]schemas.UnsubscribeLink{
		"good":   {{URL: "https://list.example/u", Kind: schemas.LinkHTTP, Source: schemas.SourceHeader}},
		"mailto": {{URL: "mailto:x@list.example", Kind: schemas.LinkMailto, Source: schemas.SourceHeader}},
	}}

	r := NewResolver(repo, mail, ext, 3, zaptest.NewLogger(t))
	items := r.Resolve(context.Background(), "u1", []string{"ok", "missing", "nolinks", "mailonly", "fetchfail"})
	require.Len(t, items, 5)

	assert.Equal(t, "ok", items[0].EmailID)
	require.NotNil(t, items[0].Link)
	assert.Equal(t, "https://list.example/u", items[0].Link.URL)
	assert.Equal(t, "owner@example.com", items[0].OwnerEmail)
	assert.Empty(t, items[0].ResolveErr)

	assert.Equal(t, MsgEmailNotFound, items[1].ResolveErr)
	assert.Equal(t, MsgNoLinks, items[2].ResolveErr)
	assert.Equal(t, MsgNoSuitableLink, items[3].ResolveErr)
	assert.Contains(t, items[4].ResolveErr, "imap down")

	repo.AssertExpectations(t)
	mail.AssertExpectations(t)
}

func TestResolveUnknownUser(t *testing.T) {
	repo := new(mocks.MockRepository)
	repo.On("GetUser", mock.Anything, "ghost").Return(nil, schemas.ErrUserNotFound).Once()
	mail := new(mocks.MockMailGateway)

	r := NewResolver(repo, mail, stubExtractor{}, 2, zaptest.NewLogger(t))
	items := r.Resolve(context.Background(), "ghost", []string{"a", "b"})

	require.Len(t, items, 2)
	for _, it := range items {
		assert.Equal(t, MsgUserNotFound, it.ResolveErr)
		assert.Nil(t, it.Link)
	}
	mail.AssertNotCalled(t, "FetchOriginalBody", mock.Anything, mock.Anything, mock.Anything)
}

func TestEmailBatchRecordsOutcomes(t *testing.T) {
	repo := new(mocks.MockRepository)
	mail := new(mocks.MockMailGateway)
	unsub := new(mocks.MockUnsubscriber)
	host := new(mocks.MockBrowserHost)

	repo.On("GetUser", mock.Anything, "u1").Return(testUser, nil)
	repo.On("GetEmail", mock.Anything, "u1", "e1").Return(&schemas.Email{ID: "e1", GoogleMessageID: "<m1@x>"}, nil)
	repo.On("GetEmail", mock.Anything, "u1", "e2").Return(nil, nil)
	mail.On("FetchOriginalBody", mock.Anything, mock.Anything, "<m1@x>").Return(schemas.OriginalMessage{Body: "good"}, nil)
	host.On("Launch", mock.Anything).Return(nil).Once()
	host.On("Release").Return().Once()
	unsub.On("UnsubscribeFromLink", mock.Anything, "https://list.example/u", "owner@example.com").
		Return(schemas.UnsubscribeOutcome{Success: true, Confirmed: true}).Once()

	repo.On("RecordOutcome", mock.Anything, "u1", mock.MatchedBy(func(o schemas.ItemOutcome) bool {
		return o.EmailID == "e1" && o.Success
	})).Return(nil).Once()
	repo.On("RecordOutcome", mock.Anything, "u1", mock.MatchedBy(func(o schemas.ItemOutcome) bool {
		return o.EmailID == "e2" && o.ErrorMessage == MsgEmailNotFound
	})).Return(errors.New("db unavailable")).Once()

	ext := stubExtractor{links: map[string][]schemas.UnsubscribeLink{
		"good": {{URL: "https://list.example/u", Kind: schemas.LinkHTTP}},
	}}
	logger := zaptest.NewLogger(t)
	eb := NewEmailBatch(
		NewResolver(repo, mail, ext, 2, logger),
		NewRunner(unsub, host, logger),
		repo, true, logger,
	)

	res, err := eb.RunEmailBatch(context.Background(), "u1", []string{"e1", "e2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Successful)
	assert.Equal(t, 1, res.Failed)

	repo.AssertExpectations(t)
	unsub.AssertExpectations(t)
	host.AssertExpectations(t)
}

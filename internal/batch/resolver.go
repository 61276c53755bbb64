package batch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/inbox-sweeper/api/schemas"
)

// Resolver turns stored email IDs into batch items by fetching each original
// message and extracting its best unsubscribe link. Messages are fetched in
// parallel, bounded by the configured concurrency.
type Resolver struct {
	repo        schemas.Repository
	mail        schemas.MailGateway
	extractor   schemas.LinkExtractor
	concurrency int
	logger      *zap.Logger
}

// NewResolver creates a resolver.
func NewResolver(repo schemas.Repository, mail schemas.MailGateway, extractor schemas.LinkExtractor, concurrency int, logger *zap.Logger) *Resolver {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Resolver{
		repo:        repo,
		mail:        mail,
		extractor:   extractor,
		concurrency: concurrency,
		logger:      logger.Named("link_resolver"),
	}
}

// Resolve returns one item per email ID, in input order. Lookup failures are
// recorded on the item rather than returned.
func (r *Resolver) Resolve(ctx context.Context, userID string, emailIDs []string) []schemas.BatchItem {
	items := make([]schemas.BatchItem, len(emailIDs))
	for i, id := range emailIDs {
		items[i].EmailID = id
	}

	user, err := r.repo.GetUser(ctx, userID)
	if err != nil || user == nil {
		msg := MsgUserNotFound
		if err != nil && !errors.Is(err, schemas.ErrUserNotFound) {
			msg = err.Error()
		}
		r.logger.Error("Could not load user for batch.", zap.String("user_id", userID), zap.Error(err))
		for i := range items {
			items[i].ResolveErr = msg
		}
		return items
	}

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i := range items {
		g.Go(func() error {
			link, err := r.resolveOne(ctx, user, items[i].EmailID)
			if err != nil {
				items[i].ResolveErr = err.Error()
				return nil
			}
			items[i].Link = link
			items[i].OwnerEmail = user.Email
			return nil
		})
	}
	_ = g.Wait()
	return items
}

func (r *Resolver) resolveOne(ctx context.Context, user *schemas.User, emailID string) (*schemas.UnsubscribeLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	email, err := r.repo.GetEmail(ctx, user.ID, emailID)
	if err != nil || email == nil {
		if err == nil || errors.Is(err, schemas.ErrEmailNotFound) {
			return nil, errors.New(MsgEmailNotFound)
		}
		return nil, err
	}

	r.logger.Debug("Fetching original message.", zap.String("email_id", emailID), zap.String("message_id", email.GoogleMessageID))
	msg, err := r.mail.FetchOriginalBody(ctx, user.Credentials(), email.GoogleMessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch original message: %w", err)
	}

	links := r.extractor.ExtractLinks(msg.Body, msg.Headers)
	r.logger.Debug("Extracted unsubscribe links.", zap.String("email_id", emailID), zap.Int("count", len(links)))
	if len(links) == 0 {
		return nil, errors.New(MsgNoLinks)
	}
	best := r.extractor.PickBest(links)
	if best == nil {
		return nil, errors.New(MsgNoSuitableLink)
	}
	return best, nil
}

// Package mail fetches original messages from a Gmail mailbox over IMAP.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/responses"
	"github.com/emersion/go-sasl"
	"go.uber.org/zap"

	"github.com/xkilldash9x/inbox-sweeper/api/schemas"
	"github.com/xkilldash9x/inbox-sweeper/internal/config"
)

// ErrNoCredentials is returned when a user has neither a token nor an app password on file.
var ErrNoCredentials = errors.New("mailbox credentials are missing")

// Gateway implements schemas.MailGateway against an IMAP server. Each fetch
// opens its own connection since credentials differ per user.
type Gateway struct {
	cfg    config.MailConfig
	logger *zap.Logger
}

var _ schemas.MailGateway = (*Gateway)(nil)

// NewGateway creates an IMAP mail gateway.
func NewGateway(cfg config.MailConfig, logger *zap.Logger) *Gateway {
	return &Gateway{cfg: cfg, logger: logger.Named("mail_gateway")}
}

// FetchOriginalBody finds the message by its Gmail API ID (hex) or its
// RFC 5322 Message-Id and returns its parsed content.
func (g *Gateway) FetchOriginalBody(ctx context.Context, creds schemas.MailCredentials, messageID string) (schemas.OriginalMessage, error) {
	if creds.AccessToken == "" && creds.Password == "" {
		return schemas.OriginalMessage{}, ErrNoCredentials
	}
	if strings.TrimSpace(messageID) == "" {
		return schemas.OriginalMessage{}, fmt.Errorf("%w: empty message id", schemas.ErrMessageNotFound)
	}

	c, err := g.connect(ctx, creds)
	if err != nil {
		return schemas.OriginalMessage{}, err
	}
	defer func() {
		if err := c.Logout(); err != nil {
			g.logger.Debug("IMAP logout failed.", zap.Error(err))
		}
	}()

	// The IMAP client is not context aware; a cancelled context tears down
	// the connection to unblock pending commands.
	stop := context.AfterFunc(ctx, func() { _ = c.Terminate() })
	defer stop()

	if _, err := c.Select(g.cfg.Folder, true); err != nil {
		return schemas.OriginalMessage{}, fmt.Errorf("failed to select mailbox %s: %w", g.cfg.Folder, err)
	}

	uids, err := searchMessage(c, messageID)
	if err != nil {
		return schemas.OriginalMessage{}, err
	}
	if len(uids) == 0 {
		return schemas.OriginalMessage{}, fmt.Errorf("%w: %s", schemas.ErrMessageNotFound, messageID)
	}

	raw, err := fetchRaw(c, uids[0])
	if err != nil {
		if ctx.Err() != nil {
			return schemas.OriginalMessage{}, ctx.Err()
		}
		return schemas.OriginalMessage{}, err
	}

	msg, err := ParseMessage(bytes.NewReader(raw))
	if err != nil {
		return schemas.OriginalMessage{}, fmt.Errorf("failed to parse message %s: %w", messageID, err)
	}
	msg.ID = messageID
	g.logger.Debug("Fetched original message.",
		zap.String("message_id", messageID),
		zap.Bool("html", msg.IsHTML),
		zap.Int("headers", len(msg.Headers)),
	)
	return msg, nil
}

func (g *Gateway) connect(ctx context.Context, creds schemas.MailCredentials) (*client.Client, error) {
	dialer := &net.Dialer{Timeout: g.cfg.DialTimeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	c, err := client.DialWithDialerTLS(dialer, g.cfg.Address(), &tls.Config{ServerName: g.cfg.Host})
	if err != nil {
		return nil, fmt.Errorf("IMAP dial failed: %w", err)
	}

	if creds.AccessToken != "" {
		auth := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: creds.Address,
			Token:    creds.AccessToken,
			Host:     g.cfg.Host,
			Port:     g.cfg.Port,
		})
		err = c.Authenticate(auth)
	} else {
		err = c.Login(creds.Address, creds.Password)
	}
	if err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("IMAP authentication failed for %s: %w", creds.Address, err)
	}
	return c, nil
}

// searchMessage resolves a message reference to UIDs. Angle-bracketed or
// address-like IDs are RFC 5322 Message-Ids; anything else is treated as a
// Gmail API ID, which is the hex form of X-GM-MSGID.
func searchMessage(c *client.Client, messageID string) ([]uint32, error) {
	if gmID, ok := GmailMessageID(messageID); ok {
		cmd := &rawSearch{Criteria: "X-GM-MSGID " + gmID}
		resp := &responses.Search{}
		status, err := c.Execute(cmd, resp)
		if err != nil {
			return nil, fmt.Errorf("X-GM-MSGID search failed: %w", err)
		}
		if err := status.Err(); err != nil {
			return nil, fmt.Errorf("X-GM-MSGID search failed: %w", err)
		}
		return resp.Ids, nil
	}

	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("Message-Id", messageID)
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("Message-Id search failed: %w", err)
	}
	return uids, nil
}

func fetchRaw(c *client.Client, uid uint32) ([]byte, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	var raw []byte
	var readErr error
	for msg := range messages {
		if raw != nil || readErr != nil {
			continue
		}
		literal := msg.GetBody(section)
		if literal == nil {
			continue
		}
		raw, readErr = io.ReadAll(literal)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}
	if readErr != nil {
		return nil, fmt.Errorf("failed to read fetched body: %w", readErr)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: empty fetch response", schemas.ErrMessageNotFound)
	}
	return raw, nil
}

// GmailMessageID converts a Gmail API message ID to the decimal X-GM-MSGID
// used by IMAP search. It reports false for anything that is not pure hex.
func GmailMessageID(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > 16 || strings.ContainsAny(id, "<@>") {
		return "", false
	}
	n, err := strconv.ParseUint(id, 16, 64)
	if err != nil {
		return "", false
	}
	return strconv.FormatUint(n, 10), true
}

// rawSearch issues a UID SEARCH with server-specific criteria that the
// generic SearchCriteria type cannot express.
type rawSearch struct {
	Criteria string
}

func (s *rawSearch) Command() *imap.Command {
	return &imap.Command{
		Name:      "UID SEARCH",
		Arguments: []interface{}{imap.RawString(s.Criteria)},
	}
}

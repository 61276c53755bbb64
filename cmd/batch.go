// File: cmd/batch.go
package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/inbox-sweeper/api/schemas"
	"github.com/xkilldash9x/inbox-sweeper/internal/extractor"
	"github.com/xkilldash9x/inbox-sweeper/internal/service"
)

func newBatchCmd(state *cliState) *cobra.Command {
	var (
		userID     string
		links      []string
		ownerEmail string
		headful    bool
	)

	cmd := &cobra.Command{
		Use:   "batch [email-id...]",
		Short: "Unsubscribe from many emails or links in one browser session",
		Long: `With --user, resolves each stored email to its best unsubscribe link and
runs the batch, recording outcomes in the database. With --link, runs the
given links directly without touching the database. Prints the batch
result as JSON.`,
		Example: `  sweeper batch --user 42 18c2f5a9b3e4d7f1 18c2f5a9b3e4d7f2
  sweeper batch --link https://example.com/unsub --link news-1=https://example.org/optout`,
		RunE: func(cmd *cobra.Command, args []string) error {
			useStore := len(args) > 0
			switch {
			case useStore && len(links) > 0:
				return errors.New("email IDs and --link cannot be combined")
			case useStore && userID == "":
				return errors.New("--user is required when email IDs are given")
			case !useStore && len(links) == 0:
				return errors.New("provide email IDs with --user, or one or more --link values")
			}

			var items []schemas.BatchItem
			if !useStore {
				var err error
				if items, err = parseLinkItems(links, ownerEmail); err != nil {
					return err
				}
			}
			if headful {
				state.cfg.SetBrowserHeadless(false)
			}

			logger := state.logger.Named("cli")
			components, err := service.Build(cmd.Context(), state.cfg, service.Options{WithStore: useStore}, logger)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			reporter := schemas.ProgressFunc(func(percent int) {
				logger.Info("Batch progress.", zap.Int("percent", percent))
			})

			var result schemas.BatchResult
			if useStore {
				result, err = components.EmailBatch.RunEmailBatch(cmd.Context(), userID, args, reporter)
			} else {
				result, err = components.Runner.RunBatch(cmd.Context(), items, reporter)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "owner of the stored emails")
	cmd.Flags().StringArrayVarP(&links, "link", "l", nil, "unsubscribe link, optionally prefixed with an ID as id=url (repeatable)")
	cmd.Flags().StringVar(&ownerEmail, "owner-email", "", "mailbox address to fill into unsubscribe forms (--link mode)")
	cmd.Flags().BoolVar(&headful, "headful", false, "show the browser window")
	return cmd
}

// parseLinkItems turns --link values into batch items. Values without an
// id= prefix are numbered by position.
func parseLinkItems(values []string, ownerEmail string) ([]schemas.BatchItem, error) {
	items := make([]schemas.BatchItem, 0, len(values))
	for i, v := range values {
		id, raw := strconv.Itoa(i+1), strings.TrimSpace(v)
		if eq := strings.Index(raw, "="); eq > 0 && !strings.Contains(raw[:eq], ":") {
			id, raw = raw[:eq], raw[eq+1:]
		}

		kind := schemas.KindFromURL(raw)
		if kind == schemas.LinkHTTP {
			if err := validateLink(raw); err != nil {
				return nil, fmt.Errorf("link %s: %w", id, err)
			}
		}
		items = append(items, schemas.BatchItem{
			EmailID: id,
			Link: &schemas.UnsubscribeLink{
				URL:        raw,
				Kind:       kind,
				Source:     schemas.SourceBody,
				OriginHint: extractor.OriginHint(raw),
			},
			OwnerEmail: ownerEmail,
		})
	}
	return items, nil
}

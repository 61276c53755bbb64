// File: cmd/unsubscribe.go
package cmd

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/inbox-sweeper/internal/service"
)

func newUnsubscribeCmd(state *cliState) *cobra.Command {
	var ownerEmail string
	var headful bool

	cmd := &cobra.Command{
		Use:   "unsubscribe <url>",
		Short: "Unsubscribe from a single link",
		Long: `Opens the link in a stealth browser, tries the known unsubscribe patterns,
falls back to the AI classifier when configured, and prints the outcome as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			link := args[0]
			if err := validateLink(link); err != nil {
				return err
			}
			if headful {
				state.cfg.SetBrowserHeadless(false)
			}

			logger := state.logger.Named("cli")
			components, err := service.Build(cmd.Context(), state.cfg, service.Options{}, logger)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			outcome := components.Orchestrator.UnsubscribeFromLink(cmd.Context(), link, ownerEmail)
			logger.Info("Unsubscribe finished.", zap.Bool("success", outcome.Success), zap.String("stage", outcome.Stage))
			return printJSON(cmd, outcome)
		},
	}

	cmd.Flags().StringVar(&ownerEmail, "owner-email", "", "mailbox address to fill into unsubscribe forms")
	cmd.Flags().BoolVar(&headful, "headful", false, "show the browser window")
	return cmd
}

// validateLink accepts absolute http(s) links. mailto links need a mail
// sender and are only reported by the batch command.
func validateLink(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid link %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid link %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid link %q: missing host", raw)
	}
	return nil
}

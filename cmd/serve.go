// File: cmd/serve.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/inbox-sweeper/internal/server"
	"github.com/xkilldash9x/inbox-sweeper/internal/service"
)

func newServeCmd(state *cliState) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the unsubscribe job API",
		Long: `Starts the HTTP API. POST /unsubscribe queues a batch over stored emails and
GET /unsubscribe/status/{jobId} reports its progress. Jobs run one at a time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			serverCfg := state.cfg.Server()
			if listen != "" {
				serverCfg.Listen = listen
			}

			logger := state.logger.Named("cli")
			components, err := service.Build(cmd.Context(), state.cfg, service.Options{WithStore: true, WithJobs: true}, logger)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			return server.New(serverCfg, components.EmailBatch, components.Jobs, logger).ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on (overrides server.listen)")
	return cmd
}

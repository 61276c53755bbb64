// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/inbox-sweeper/internal/config"
	"github.com/xkilldash9x/inbox-sweeper/internal/observability"
)

const envPrefix = "SWEEPER"

// cliState carries what PersistentPreRunE loads to the subcommands.
type cliState struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
	logger  *zap.Logger
}

// NewRootCmd builds the command tree. Each call returns an independent tree
// with its own viper instance.
func NewRootCmd() *cobra.Command {
	state := &cliState{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "sweeper",
		Short: "Sweeper unsubscribes an inbox from mailing lists.",
		// Version is set at build time. See cmd/version.go.
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(state); err != nil {
				return err
			}
			cfg, err := config.NewConfigFromViper(state.v)
			if err != nil {
				// Fall back to a console logger so the failure is still reported.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "sweeper"})
				return err
			}
			state.cfg = cfg

			observability.InitializeLogger(cfg.Logger())
			state.logger = observability.GetLogger()
			state.logger.Debug("Starting sweeper.", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&state.cfgFile, "config", "c", "", "config file (default is ./config.yaml or ~/.sweeper/config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.AddCommand(
		newUnsubscribeCmd(state),
		newBatchCmd(state),
		newServeCmd(state),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	observability.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// initializeConfig reads in the config file and environment variables.
func initializeConfig(state *cliState) error {
	v := state.v
	config.SetDefaults(v)

	if state.cfgFile != "" {
		path, err := homedir.Expand(state.cfgFile)
		if err != nil {
			return fmt.Errorf("failed to expand config path: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".sweeper"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and env vars.
	}
	return nil
}

// printJSON writes v as indented JSON to the command's output.
func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Command narrator speaks narrative prose with a distinct voice per character.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/narrator-go/internal/config"
	"github.com/dgnsrekt/narrator-go/internal/logging"
)

const version = "0.1.0"

// app carries what every subcommand needs once the root has loaded it.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
}

func main() {
	if err := rootCmd(&app{}).Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "narrator",
		Short:         "Attribute dialogue in narrative text and speak it in character voices",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a.logCloser != nil {
				a.logCloser.Close()
			}
		},
	}
	cmd.AddCommand(serveCmd(a), speakCmd(a), segmentCmd(a))
	return cmd
}

func (a *app) load() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, closer, err := logging.NewWithFile(cfg.LogLevel, cfg.LogFormat, logging.FileConfig{
		Path:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	a.logCloser = closer
	return nil
}

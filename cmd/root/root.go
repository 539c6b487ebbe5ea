// Package root contains the root command for the application
package root

import (
	"fmt"

	"banklytik/statement-normalizer/internal/config"
	"banklytik/statement-normalizer/internal/container"
	"banklytik/statement-normalizer/internal/logging"

	"github.com/spf13/cobra"
)

// CommonFlags represents the flags that are common to multiple commands
type CommonFlags struct {
	Config      string
	Input       string
	Output      string
	Format      string
	Institution string
}

var (
	// AppContainer holds the dependencies built for the running command.
	AppContainer *container.Container

	// Cmd is the root command
	Cmd = &cobra.Command{
		Use:   "stmtnorm",
		Short: "A CLI tool to normalize OCR'd bank statements into clean transaction tables.",
		Long: `stmtnorm turns the OCR output of scanned or digital bank statements into
canonical transaction rows. Damaged dates are repaired, validated and flagged
for review; tables split across pages are merged back together.`,
		SilenceUsage:      true,
		PersistentPreRunE: initContainer,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if AppContainer == nil {
				return
			}
			if err := AppContainer.Close(); err != nil {
				AppContainer.GetLogger().WithError(err).Warn("Failed to release resources")
			}
		},
	}

	// SharedFlags holds the persistent flag values.
	SharedFlags = CommonFlags{}
)

// Init initializes the root command and all flags
func Init() {
	Cmd.PersistentFlags().StringVar(&SharedFlags.Config, "config", "", "Config file (default is $HOME/.banklytik/config.yaml)")
	Cmd.PersistentFlags().StringVarP(&SharedFlags.Input, "input", "i", "", "Input file or directory")
	Cmd.PersistentFlags().StringVarP(&SharedFlags.Output, "output", "o", "", "Output file or directory")
	Cmd.PersistentFlags().StringVar(&SharedFlags.Format, "format", "", "Output format: csv, xlsx or json (default from config)")
	Cmd.PersistentFlags().StringVar(&SharedFlags.Institution, "institution", "", "Institution code, or AUTO to detect it (default from config)")
}

func initContainer(cmd *cobra.Command, args []string) error {
	config.LoadEnv()
	cfg, err := config.InitializeConfig(SharedFlags.Config)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	c, err := container.NewContainer(cfg)
	if err != nil {
		return fmt.Errorf("error initializing application: %w", err)
	}
	AppContainer = c
	c.GetLogger().Debug("Command started", logging.F(logging.FieldOperation, cmd.CommandPath()))
	return nil
}

// GetContainer returns the container built for the running command.
func GetContainer() *container.Container {
	return AppContainer
}

// GetLogger returns the container's logger, or a default one before initialization.
func GetLogger() logging.Logger {
	if AppContainer == nil {
		return logging.OrDefault(nil)
	}
	return AppContainer.GetLogger()
}

// Institution returns the --institution flag, falling back to the configured default.
func Institution() string {
	if SharedFlags.Institution != "" {
		return SharedFlags.Institution
	}
	if AppContainer != nil {
		return AppContainer.GetConfig().Institution.Default
	}
	return ""
}

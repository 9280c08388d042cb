package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"readingsurvey/internal/config"
	"readingsurvey/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "survey",
	Short: "Reading-material survey service",
	Long: `survey runs the participant-facing backend of the reading-material study:
consent, randomized text assignment, the two-page questionnaire and submission,
for a batch of texts per participant.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "survey.yaml", "config file (missing file uses defaults)")
	rootCmd.AddCommand(serveCmd, parseCmd, catalogCmd)
}

// @title Reading Survey API
// @version 1.0
// @description Consent, text assignment and questionnaire submission for the reading-material study
// @host localhost:8080
// @BasePath /v1
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, log.WithSalt(cfg.Log.Salt), nil
}

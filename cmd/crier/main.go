package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	crier "github.com/matthewjhunter/crier"
	"github.com/matthewjhunter/crier/internal/config"
	"github.com/matthewjhunter/crier/internal/logging"
	"github.com/matthewjhunter/crier/internal/output"
)

var (
	configPath   string
	cfg          *config.Config
	outputFormat string
	tenantID     string
	formatter    *output.Formatter
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "crier",
		Short:         "Autonomous content scheduling and publishing for social platforms",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(outputFormat)
			if err != nil {
				return err
			}
			formatter = output.NewFormatterWithWriters(format, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return loadConfig()
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default: ./crier.yaml)")
	root.PersistentFlags().StringVarP(&outputFormat, "format", "f", "human", "output format: json, text, human")
	root.PersistentFlags().StringVarP(&tenantID, "tenant", "t", envOr("CRIER_TENANT", "default"), "tenant to act for")

	root.AddCommand(daemonCmd())
	root.AddCommand(tickCmd())
	root.AddCommand(generateCmd())
	root.AddCommand(postCmd())
	root.AddCommand(queueCmd())
	root.AddCommand(knowledgeCmd())
	root.AddCommand(platformsCmd())
	root.AddCommand(configCmd())
	root.AddCommand(dashboardCmd())
	root.AddCommand(performanceCmd())
	root.AddCommand(logsCmd())
	return root
}

func loadConfig() error {
	if configPath == "" {
		configPath = "./crier.yaml"
	}
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = c
	return nil
}

// openEngine builds an engine from the loaded config. Callers close it.
func openEngine(service string) (*crier.Engine, error) {
	log := logging.NewLoggerWithService(service, cfg.Log.Level)
	engine, err := crier.NewEngine(crier.EngineConfig{Config: cfg, Logger: log})
	if err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}
	return engine, nil
}

// withEngine opens an engine for the duration of fn.
func withEngine(fn func(e *crier.Engine) error) error {
	engine, err := openEngine("crier")
	if err != nil {
		return err
	}
	defer engine.Close()
	return fn(engine)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

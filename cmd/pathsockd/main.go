package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/irctrakz/pathsock/pkg/config"
	"github.com/irctrakz/pathsock/pkg/logging"
)

var (
	version = "dev"

	configPath string
	debugOn    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pathsockd",
		Short: "Path-aware transport socket daemon",
		Long: "pathsockd runs the pathsock socket layer over a UDP underlay:\n" +
			"it binds a local path engine, registers the configured candidate\n" +
			"paths, and serves an echo responder through the socket core.",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (yaml or json)")
	rootCmd.PersistentFlags().BoolVar(&debugOn, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig builds the effective configuration: defaults, then file, then
// environment, then flags.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		if err := config.LoadFromFile(configPath, cfg); err != nil {
			return nil, err
		}
	}
	config.LoadFromEnv(cfg)
	if debugOn {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.ApplyLogging(); err != nil {
		return nil, err
	}
	logging.Debugf("effective config: listen=%s ia=%s peers=%d",
		cfg.Engine.ListenAddress, cfg.Engine.LocalIA, len(cfg.Peers))
	return cfg, nil
}

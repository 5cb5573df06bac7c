// Command llm-router runs the polyglot LLM gateway: one HTTP listener that
// accepts OpenAI and Anthropic chat requests, resolves the requested model
// against configured providers, and proxies upstream with translation,
// retries, and failover.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jedarden/llm-router/internal/config"
	"github.com/jedarden/llm-router/internal/logging"
	"github.com/jedarden/llm-router/internal/proxy"
	"github.com/jedarden/llm-router/internal/secrets"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// Missing .env is fine; explicit env always wins.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "llm-router",
		Short:         "Polyglot LLM gateway: one endpoint, many providers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), validateCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var listen string
	var configPath string
	var ignoreAuth bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.ConfigureForService()

			env, err := config.LoadEnv()
			if err != nil {
				return err
			}
			if listen != "" {
				env.Listen = listen
			}
			if configPath != "" {
				env.ConfigPath = configPath
			}
			if env.Debug {
				if err := logging.EnableDebugLogging(); err != nil {
					log.Printf("[llm-router] Warning: debug logging unavailable: %v", err)
				} else {
					log.Printf("[llm-router] debug capture -> %s", logging.GetDebugLogPath())
				}
			}

			loader := &config.Loader{Path: env.ConfigPath, InlineJSON: env.ConfigJSON}
			snap, err := loader.Load()
			if err != nil {
				return err
			}
			store := config.NewStore(snap)

			server := proxy.NewServer(proxy.Options{
				Env:        env,
				Loader:     loader,
				Store:      store,
				IgnoreAuth: ignoreAuth,
				Version:    version,
			})
			return server.Run(context.Background())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default "+config.DefaultListen+", env LLM_ROUTER_LISTEN)")
	cmd.Flags().StringVar(&configPath, "config", "", "config file path (env LLM_ROUTER_CONFIG)")
	cmd.Flags().BoolVar(&ignoreAuth, "ignore-auth", false, "local mode: skip master-key auth when no key is configured")
	return cmd
}

func validateCmd() *cobra.Command {
	var configPath string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			if quiet {
				logging.ConfigureQuiet()
			}

			env, err := config.LoadEnv()
			if err != nil {
				return err
			}
			if configPath != "" {
				env.ConfigPath = configPath
			}
			loader := &config.Loader{Path: env.ConfigPath, InlineJSON: env.ConfigJSON}
			snap, err := loader.Load()
			if err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}
			if !quiet {
				printSummary(snap)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "config file path (env LLM_ROUTER_CONFIG)")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "exit code only, no summary")
	return cmd
}

func printSummary(snap *config.Snapshot) {
	cfg := snap.Config
	fmt.Printf("Config OK (version %d)\n", cfg.Version)
	if cfg.MasterKey != "" {
		fmt.Printf("Master key: %s\n", secrets.MaskAPIKey(cfg.MasterKey))
	}
	if cfg.DefaultModel != "" {
		fmt.Printf("Default model: %s\n", cfg.DefaultModel)
	}
	fmt.Printf("Providers: %d enabled\n", cfg.EnabledProviders())
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		state := "enabled"
		if !p.IsEnabled() {
			state = "disabled"
		}
		fmt.Printf("  %-20s %-8s models=%-3d key=%s\n",
			p.ID, state, len(p.Models), secrets.FormatKeySource(p.APIKeyEnv, p.APIKey != ""))
	}
	if len(cfg.ModelAliases) > 0 {
		fmt.Printf("Aliases: %d\n", len(cfg.ModelAliases))
		for name, alias := range cfg.ModelAliases {
			fmt.Printf("  %-20s strategy=%s targets=%d\n", name, alias.Strategy, len(alias.Targets))
		}
	}
	for _, warning := range cfg.Warnings() {
		fmt.Printf("Warning: %s\n", warning)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gateway version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("llm-router " + version)
		},
	}
}

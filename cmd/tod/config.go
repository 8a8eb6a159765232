package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/erentorlak/todv2/internal/api"
	"github.com/erentorlak/todv2/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify tod configuration.

Without arguments, displays the effective configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the value in the user config.

Configuration is stored at ~/.config/tod/config.yaml
Project-specific overrides can be placed in .tod.yaml`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch len(args) {
		case 0:
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			displayAllConfig(os.Stdout, cfg)
			return nil
		case 1:
			value, err := config.Get(args[0])
			if err != nil {
				return err
			}
			if isSecretKey(args[0]) {
				value = config.MaskAPIKey(fmt.Sprint(value))
			}
			fmt.Println(value)
			return nil
		default:
			if err := config.Set(args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Set %s in %s\n", args[0], config.GetUserConfigPath())
			return nil
		}
	},
}

func isSecretKey(key string) bool {
	return strings.HasSuffix(key, "api_key")
}

// displayAllConfig prints all configuration values with secrets masked.
func displayAllConfig(w io.Writer, cfg *config.Config) {
	for _, p := range []string{config.ProviderAnthropic, config.ProviderGoogle} {
		display := "(not set)"
		if key, err := config.GetAPIKey(cfg, p); err == nil {
			display = fmt.Sprintf("%s (from %s)", config.MaskAPIKey(key), config.GetAPIKeySource(cfg, p))
		}
		fmt.Fprintf(w, "%s.api_key: %s\n", p, display)
	}
	fmt.Fprintf(w, "llm.provider: %s\n", cfg.LLM.Provider)
	fmt.Fprintf(w, "llm.model: %s\n", cfg.LLM.Model)
	roles := cfg.LLM.APIRoles()
	names := make([]string, 0, len(roles))
	for role := range roles {
		names = append(names, string(role))
	}
	sort.Strings(names)
	for _, name := range names {
		s := roles[api.Role(name)]
		fmt.Fprintf(w, "llm.roles.%s: temperature=%g max_tokens=%d\n", name, s.Temperature, s.MaxTokens)
	}
	fmt.Fprintf(w, "aws.region: %s\n", cfg.AWS.Region)
	fmt.Fprintf(w, "aws.profile: %s\n", cfg.AWS.Profile)
	fmt.Fprintf(w, "dialog.max_retries: %d\n", cfg.Dialog.MaxRetries)
	fmt.Fprintf(w, "dialog.max_parallel: %d\n", cfg.Dialog.MaxParallel)
	fmt.Fprintf(w, "dialog.catalog_path: %s\n", cfg.Dialog.CatalogPath)
	fmt.Fprintf(w, "dialog.strict_catalog: %t\n", cfg.Dialog.StrictCatalog)
	fmt.Fprintf(w, "dialog.watch_catalog: %t\n", cfg.Dialog.WatchCatalog)
	fmt.Fprintf(w, "dialog.classifier_cache_size: %d\n", cfg.Dialog.ClassifierCacheSize)
	fmt.Fprintf(w, "store.path: %s\n", cfg.Store.Path)
	fmt.Fprintf(w, "store.retention: %s\n", cfg.Store.Retention)
	fmt.Fprintf(w, "server.addr: %s\n", cfg.Server.Addr)
}

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joouha/termview/pkg/config"
	"github.com/joouha/termview/pkg/errors"
)

// newCacheCmd manages the persistent conversion cache.
func newCacheCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the persistent conversion cache",
		Long: `Cache inspects and clears the persistent conversion cache. Converted
outputs are cached keyed on content hash, so entries never go stale; clear
the cache to reclaim disk space.`,
	}
	cmd.AddCommand(newCachePathCmd(configPath))
	cmd.AddCommand(newCacheClearCmd(configPath))
	return cmd
}

func newCachePathCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			switch cfg.Cache.Backend {
			case "redis":
				printInfo("Backend: %s", StyleValue.Render("redis"))
				printDetail("addr: %s", cfg.Cache.Addr)
			case "none", "":
				printInfo("Persistent caching is disabled")
			default:
				dir, err := cfg.CacheDir()
				if err != nil {
					return err
				}
				fmt.Println(dir)
			}
			return nil
		},
	}
}

func newCacheClearCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all cached conversion outputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Cache.Backend == "redis" {
				printWarning("Redis caches are shared; clear them with redis-cli")
				return nil
			}
			if cfg.Cache.Backend == "none" || cfg.Cache.Backend == "" {
				printInfo("Persistent caching is disabled; nothing to clear")
				return nil
			}

			dir, err := cfg.CacheDir()
			if err != nil {
				return err
			}
			if err := os.RemoveAll(dir); err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err, "removing cache directory")
			}
			printSuccess("Cleared cache at %s", StyleValue.Render(dir))
			return nil
		},
	}
}

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/bannerbuildr/internal/assets"
	"github.com/bannerbuildr/internal/config"
)

// ConfigCommand returns the config command
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Create or check the configuration file",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write a sample configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Where to write the file",
						Value:   "bannerbuildr.toml",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Replace an existing file",
					},
				},
				Action: runConfigInit,
			},
			{
				Name:  "validate",
				Usage: "Load the configuration and report the effective settings",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "check-ai",
						Usage: "Also check that the configured AI provider answers",
					},
				},
				Action: runConfigValidate,
			},
		},
	}
}

func runConfigInit(c *cli.Context) error {
	out := c.String("output")
	if c.Bool("force") {
		if err := os.Remove(out); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to replace %s: %w", out, err)
		}
	}
	if err := config.InitConfig(out); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	fmt.Printf("Wrote sample configuration to %s\n", out)
	return nil
}

func runConfigValidate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  listen:   %s\n", cfg.Server.Address())
	fmt.Printf("  template: entry %s, config script %s, default size %dx%d\n",
		cfg.Template.EntryName, cfg.Template.ConfigScript, cfg.Template.DefaultWidth, cfg.Template.DefaultHeight)
	strategy, _ := assets.ParseStrategy(cfg.Preview.Strategy)
	fmt.Printf("  preview:  %s assets\n", strategy)
	if cfg.AI.Enabled() {
		fmt.Printf("  ai:       %s %s (api_key %s)\n", cfg.AI.Provider, cfg.AI.Model, maskSecret(cfg.AI.APIKey))
		if c.Bool("check-ai") {
			ctx, cancel := context.WithTimeout(c.Context, cfg.AI.Timeout())
			defer cancel()
			connector, err := newConnector(ctx, cfg.AI)
			if err != nil {
				return err
			}
			if err := connector.Ping(ctx); err != nil {
				return err
			}
			fmt.Println("  ai:       provider answered")
		}
	} else {
		fmt.Println("  ai:       none, mappings must be supplied explicitly")
	}
	return nil
}

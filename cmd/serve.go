package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/bannerbuildr/internal/api"
)

// ServeCommand returns the CLI command for starting the API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the bannerbuildr API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides server.port)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if port := c.Int("port"); port > 0 {
				cfg.Server.Port = port
			}

			comp, err := NewComponents(c.Context, cfg)
			if err != nil {
				return err
			}

			fmt.Printf("Starting bannerbuildr API server on %s...\n", cfg.Server.Address())
			server := api.NewServer(cfg.Server.Address(), api.Deps{
				Store:         comp.Store,
				Renderer:      comp.Renderer,
				Handles:       comp.Handles,
				Mapper:        comp.Mapper,
				Binder:        comp.Binder,
				Records:       comp.Records,
				Packager:      comp.Packager,
				BundleOptions: comp.BundleOptions,
			})
			return server.Start()
		},
	}
}

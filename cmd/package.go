package cmd

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/bannerbuildr/internal/archive"
)

// PackageCommand returns the command combining banner archives into one
func PackageCommand() *cli.Command {
	return &cli.Command{
		Name:      "package",
		Usage:     "Combine banner archives into one archive with a folder per banner",
		ArgsUsage: "BANNER.zip...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Output archive",
				Value:   "banners.zip",
			},
			&cli.StringSliceFlag{
				Name:  "source-id",
				Usage: "Fetch a served banner archive by id (requires archive.fetch_base_url, repeatable)",
			},
		},
		Action: runPackage,
	}
}

func runPackage(c *cli.Context) error {
	if c.NArg() == 0 && len(c.StringSlice("source-id")) == 0 {
		return errors.New("nothing to package: pass archives or --source-id")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	comp, err := NewComponents(c.Context, cfg)
	if err != nil {
		return err
	}

	var items []archive.Item
	for _, path := range c.Args().Slice() {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		b, err := comp.readTemplate(path)
		if err != nil {
			// reported like any other failed banner
			log.Warn().Err(err).Str("archive", path).Msg("Could not read archive")
			items = append(items, archive.Item{Name: name})
			continue
		}
		items = append(items, archive.Item{Name: name, Bundle: b})
	}
	for _, id := range c.StringSlice("source-id") {
		items = append(items, archive.Item{Name: id, SourceID: id})
	}
	return writeBatch(c, comp.Packager, c.String("out"), items)
}

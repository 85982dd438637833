package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/bannerbuildr/internal/archive"
	"github.com/bannerbuildr/internal/binder"
	"github.com/bannerbuildr/internal/mapping"
	"github.com/bannerbuildr/internal/records"
	"github.com/bannerbuildr/pkg/models"
)

// GenerateCommand returns the command producing variations from a template
// and data records
func GenerateCommand() *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Usage:     "Generate banner variations and write them as archives",
		ArgsUsage: "TEMPLATE.zip",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "source",
				Usage:    "Data source: spreadsheet URL or id, .xlsx workbook or .csv file",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "subset",
				Usage: "Sheet tab, workbook sheet or csv name holding the primary records",
			},
			&cli.StringFlag{
				Name:  "role",
				Usage: "Role of the primary records",
				Value: "parent",
			},
			&cli.StringSliceFlag{
				Name:     "id",
				Usage:    "Primary record identifier; one variation per id (repeatable)",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "record",
				Usage: "Auxiliary record bound into every variation, as role:subset:id (repeatable)",
			},
			&cli.StringFlag{
				Name:    "mapping",
				Aliases: []string{"m"},
				Usage:   "Field mapping JSON `FILE`; inferred from the primary columns when omitted",
			},
			&cli.StringFlag{
				Name:  "label",
				Usage: "Label prefixing variation names",
			},
			&cli.StringFlag{
				Name:  "tier",
				Usage: "Tier suffix (T1 or T2)",
			},
			&cli.StringFlag{
				Name:  "base-folder",
				Usage: "Prefix for relative image file names",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Output directory",
				Value:   ".",
			},
			&cli.BoolFlag{
				Name:  "batch",
				Usage: "Write one archive with a folder per variation",
			},
		},
		Action: runGenerate,
	}
}

// parseRecordFlag parses role:subset:id.
func parseRecordFlag(source, value string) (records.RoleRequest, error) {
	parts := strings.SplitN(value, ":", 3)
	if len(parts) != 3 || strings.TrimSpace(parts[2]) == "" {
		return records.RoleRequest{}, fmt.Errorf("invalid --record %q, want role:subset:id", value)
	}
	return records.RoleRequest{Role: parts[0], SourceID: source, Subset: parts[1], ID: parts[2]}, nil
}

func runGenerate(c *cli.Context) error {
	if c.NArg() < 1 {
		return errors.New("missing required argument: TEMPLATE.zip")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	comp, err := NewComponents(c.Context, cfg)
	if err != nil {
		return err
	}
	tpl, err := comp.readTemplate(c.Args().First())
	if err != nil {
		return err
	}

	source, subset := c.String("source"), c.String("subset")
	var aux []records.RoleRequest
	for _, v := range c.StringSlice("record") {
		req, err := parseRecordFlag(source, v)
		if err != nil {
			return err
		}
		aux = append(aux, req)
	}

	var m mapping.FieldMapping
	if path := c.String("mapping"); path != "" {
		if m, err = readMapping(path); err != nil {
			return err
		}
	} else {
		if comp.Mapper == nil {
			return fmt.Errorf("%w: pass --mapping or configure an AI provider", mapping.ErrMappingUnavailable)
		}
		table, err := comp.Records.Fetch(c.Context, source, subset)
		if err != nil {
			return err
		}
		script, _ := tpl.ConfigText()
		if m, err = comp.Mapper.Map(c.Context, script, table.Columns); err != nil {
			return err
		}
	}

	var variations []*binder.Variation
	for _, id := range c.StringSlice("id") {
		reqs := append([]records.RoleRequest{{Role: c.String("role"), SourceID: source, Subset: subset, ID: id}}, aux...)
		v, err := comp.Binder.BindRequests(c.Context, tpl, m, comp.Records, reqs, binder.Request{
			Label:          c.String("label"),
			Tier:           models.Tier(strings.ToUpper(c.String("tier"))),
			BaseFolderPath: c.String("base-folder"),
		})
		if err != nil {
			return err
		}
		if w := v.Warning(); w != nil {
			log.Warn().Err(w).Str("variation", v.Name).Msg("Variation uses template defaults")
		}
		variations = append(variations, v)
	}

	out := c.String("out")
	if err := os.MkdirAll(out, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}

	if c.Bool("batch") {
		items := make([]archive.Item, len(variations))
		for i, v := range variations {
			items[i] = archive.Item{Name: v.Name, Bundle: v.Bundle}
		}
		name := c.String("label")
		if name == "" {
			name = "banners"
		}
		return writeBatch(c, comp.Packager, filepath.Join(out, name+".zip"), items)
	}

	for _, v := range variations {
		data, err := comp.Packager.PackageBytes(v.Bundle)
		if err != nil {
			return err
		}
		path := filepath.Join(out, v.Name+".zip")
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Printf("%s (%dx%d, %d fields applied)\n", path, v.Dimensions.Width, v.Dimensions.Height, len(v.Applied))
	}
	return nil
}

func writeBatch(c *cli.Context, p *archive.Packager, path string, items []archive.Item) error {
	var buf bytes.Buffer
	report, err := p.PackageBatch(c.Context, &buf, items)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Printf("%s (%d folders)\n", path, len(report.Folders))
	for _, f := range report.Failures {
		fmt.Fprintf(os.Stderr, "skipped: %v\n", f)
	}
	return nil
}

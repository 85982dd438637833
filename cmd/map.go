package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/bannerbuildr/internal/mapping"
)

// MapCommand returns the command inferring a field mapping for a template
func MapCommand() *cli.Command {
	return &cli.Command{
		Name:      "map",
		Usage:     "Infer which data fields feed which configuration script variables",
		ArgsUsage: "TEMPLATE.zip",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "field",
				Aliases: []string{"f"},
				Usage:   "Field name to map (repeatable)",
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "Take field names from the columns of this data source",
			},
			&cli.StringFlag{
				Name:  "subset",
				Usage: "Sheet tab, workbook sheet or csv file name within --source",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the mapping JSON to `FILE` instead of stdout",
			},
		},
		Action: runMap,
	}
}

func runMap(c *cli.Context) error {
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
	if comp.Mapper == nil {
		return fmt.Errorf("%w: no AI provider configured", mapping.ErrMappingUnavailable)
	}

	b, err := comp.readTemplate(c.Args().First())
	if err != nil {
		return err
	}
	script, ok := b.ConfigText()
	if !ok {
		return fmt.Errorf("template has no %s", b.Options().ConfigName)
	}

	fields := c.StringSlice("field")
	if source := c.String("source"); source != "" {
		table, err := comp.Records.Fetch(c.Context, source, c.String("subset"))
		if err != nil {
			return err
		}
		fields = append(fields, table.Columns...)
	}
	if len(fields) == 0 {
		return errors.New("no field names: use --field or --source")
	}

	m, err := comp.Mapper.Map(c.Context, script, fields)
	if err != nil {
		return err
	}
	return writeJSON(c.String("output"), m)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
	return nil
}

func readMapping(path string) (mapping.FieldMapping, error) {
	var m mapping.FieldMapping
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("failed to read mapping: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("invalid mapping %s: %w", path, err)
	}
	return m, nil
}

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/kousskous/menu-extractor/internal/common"
	"github.com/kousskous/menu-extractor/internal/entity"
	"github.com/kousskous/menu-extractor/internal/export"
	"github.com/kousskous/menu-extractor/internal/utils"
)

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "write the dataset as an XLSX workbook, one row per dish",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Usage: "dataset (default: geocoded dataset if present, else restaurants.json)"},
			&cli.StringFlag{Name: "out", Usage: "workbook path (default <output-dir>/restaurants.xlsx)"},
		},
		Action: runExport,
	}
}

func runExport(c *cli.Context) error {
	cfg, logger := setup(c)
	in := c.String("in")
	if in == "" {
		in = cfg.OutputPath(common.GeocodedFile)
		if _, err := os.Stat(in); errors.Is(err, os.ErrNotExist) {
			in = cfg.OutputPath(common.RestaurantsFile)
		}
	}
	out := c.String("out")
	if out == "" {
		out = cfg.OutputPath(common.XLSXFile)
	}

	var restaurants []entity.Restaurant
	if err := utils.ReadJSON(in, &restaurants); err != nil {
		return common.NewAppError(common.CodeInput, "read dataset "+in, err)
	}

	b, err := export.NewService(logger).RestaurantsXLSX(restaurants)
	if err != nil {
		return err
	}
	if err := utils.WriteFileAtomic(out, b, 0o644); err != nil {
		return common.PersistError("write workbook", err)
	}
	fmt.Printf("Exported %d restaurant(s) from %s to %s\n", len(restaurants), in, out)
	return nil
}

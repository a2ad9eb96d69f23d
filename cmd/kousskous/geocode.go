package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/urfave/cli/v2"

	"github.com/kousskous/menu-extractor/internal/common"
	"github.com/kousskous/menu-extractor/internal/entity"
	"github.com/kousskous/menu-extractor/internal/geocode"
	"github.com/kousskous/menu-extractor/internal/utils"
)

func geocodeCommand() *cli.Command {
	return &cli.Command{
		Name:  "geocode",
		Usage: "add coordinates to the extracted dataset",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Usage: "dataset to enrich (default <output-dir>/restaurants.json)"},
			&cli.StringFlag{Name: "out", Usage: "geocoded dataset (default <output-dir>/restaurants_geolocalized.json)"},
			&cli.DurationFlag{Name: "delay", Usage: "minimum delay between requests (env GEOCODER_DELAY)"},
		},
		Action: runGeocode,
	}
}

func runGeocode(c *cli.Context) error {
	cfg, logger := setup(c)
	if d := c.Duration("delay"); d > 0 {
		cfg.Geocoder.Delay = d
	}
	if err := cfg.ValidateGeocode(); err != nil {
		return err
	}
	in := c.String("in")
	if in == "" {
		in = cfg.OutputPath(common.RestaurantsFile)
	}
	out := c.String("out")
	if out == "" {
		out = cfg.OutputPath(common.GeocodedFile)
	}

	var restaurants []entity.Restaurant
	if err := utils.ReadJSON(in, &restaurants); err != nil {
		return common.NewAppError(common.CodeInput, "read dataset "+in, err)
	}

	ctx := c.Context
	run, closeTracking := startTracking(ctx, cfg, "geocoding", logger)
	defer closeTracking()

	client := geocode.NewIGNClient(cfg.Geocoder.URL, &http.Client{}, logger)
	enricher := geocode.NewEnricher(client, geocode.Config{
		Delay:   cfg.Geocoder.Delay,
		Timeout: cfg.Geocoder.Timeout,
	}, logger)

	enriched, stats, err := enricher.Enrich(ctx, restaurants)
	if err != nil {
		if run != nil {
			run.End(context.WithoutCancel(ctx), runStatus(err))
		}
		return fmt.Errorf("geocoding stopped after %d restaurant(s): %w", len(enriched), err)
	}
	if err := utils.WriteJSONAtomic(out, enriched); err != nil {
		return common.PersistError("write geocoded dataset", err)
	}

	if run != nil {
		run.LogParams(ctx, map[string]string{"input": in, "delay": cfg.Geocoder.Delay.String()})
		run.LogMetric(ctx, "geocode_success", float64(stats.Success), stats.Total)
		run.LogMetric(ctx, "geocode_failed", float64(stats.Failed), stats.Total)
		run.LogMetric(ctx, "geocode_no_address", float64(stats.NoAddress), stats.Total)
		run.LogArtifact(ctx, "geocoded", out)
		run.End(ctx, runStatus(nil))
	}

	fmt.Println()
	fmt.Println("Geocoding summary")
	fmt.Printf("  restaurants:  %d\n", stats.Total)
	fmt.Printf("  success:      %d (%.1f%%)\n", stats.Success, stats.Percent(stats.Success))
	fmt.Printf("  failed:       %d (%.1f%%)\n", stats.Failed, stats.Percent(stats.Failed))
	fmt.Printf("  no address:   %d (%.1f%%)\n", stats.NoAddress, stats.Percent(stats.NoAddress))
	fmt.Printf("  output:       %s\n", out)
	return nil
}

package geocode

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kousskous/menu-extractor/constants"
	"github.com/kousskous/menu-extractor/internal/entity"
)

const (
	DefaultDelay   = 100 * time.Millisecond
	DefaultTimeout = 10 * time.Second
)

// Config tunes the enrichment pass.
type Config struct {
	// Delay is the minimum spacing between two consecutive requests, counted
	// both from the previous start and from the previous completion.
	Delay time.Duration
	// Timeout bounds each request.
	Timeout time.Duration
}

// Stats counts restaurants per geocoding status.
type Stats struct {
	Total     int
	Success   int
	Failed    int
	NoAddress int
}

// Percent returns n as a share of Total.
func (s Stats) Percent(n int) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(s.Total)
}

// Enricher adds coordinates and a geocoding status to every restaurant.
// Requests are issued one at a time, paced by a limiter with burst 1; a slow
// answer still leaves Delay of quiet before the next request.
type Enricher struct {
	geocoder Geocoder
	limiter  *rate.Limiter
	delay    time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewEnricher(g Geocoder, cfg Config, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Enricher{
		geocoder: g,
		limiter:  rate.NewLimiter(rate.Every(cfg.Delay), 1),
		delay:    cfg.Delay,
		timeout:  cfg.Timeout,
		logger:   logger,
	}
}

// Enrich returns copies of restaurants, in the same order, with coordinates
// and status set. A failing address only affects its own restaurant; the
// returned error is non-nil only when ctx is done, alongside what was
// enriched so far.
func (e *Enricher) Enrich(ctx context.Context, restaurants []entity.Restaurant) ([]entity.Restaurant, Stats, error) {
	start := time.Now()
	out := make([]entity.Restaurant, 0, len(restaurants))
	stats := Stats{Total: len(restaurants)}
	var lastDone time.Time
	e.logger.Info("geocode.run.start", "restaurants", len(restaurants))

	for i, r := range restaurants {
		geo := r.Clone()
		geo.Longitude, geo.Latitude = nil, nil

		address := strings.TrimSpace(r.Address)
		if address == "" {
			geo.GeocodingStatus = string(constants.GeocodingNoAddress)
			stats.NoAddress++
			e.logger.Warn("geocode.request.no_address", "index", i, "name", r.Name)
			out = append(out, geo)
			continue
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return out, stats, err
		}
		if !lastDone.IsZero() {
			if err := sleepUntil(ctx, lastDone.Add(e.delay)); err != nil {
				return out, stats, err
			}
		}

		p, err := e.lookup(ctx, address)
		lastDone = time.Now()
		switch {
		case err == nil:
			lon, lat := p.Longitude, p.Latitude
			geo.Longitude, geo.Latitude = &lon, &lat
			geo.GeocodingStatus = string(constants.GeocodingSuccess)
			stats.Success++
			e.logger.Info("geocode.request.ok", "index", i, "name", r.Name, "lon", lon, "lat", lat)
		case ctx.Err() != nil:
			return out, stats, ctx.Err()
		default:
			geo.GeocodingStatus = string(constants.GeocodingFailed)
			stats.Failed++
			e.logger.Warn("geocode.request.failed", "index", i, "name", r.Name, "address", address, "error", err)
		}
		out = append(out, geo)
	}

	e.logger.Info("geocode.run.done",
		"total", stats.Total,
		"success", stats.Success,
		"success_pct", stats.Percent(stats.Success),
		"failed", stats.Failed,
		"failed_pct", stats.Percent(stats.Failed),
		"no_address", stats.NoAddress,
		"no_address_pct", stats.Percent(stats.NoAddress),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, stats, nil
}

func (e *Enricher) lookup(ctx context.Context, address string) (Point, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.geocoder.Geocode(ctx, address)
}

func sleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

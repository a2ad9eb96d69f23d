package geocode

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kousskous/menu-extractor/constants"
	"github.com/kousskous/menu-extractor/internal/entity"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func restaurantsWithAddresses(n int) []entity.Restaurant {
	out := make([]entity.Restaurant, n)
	for i := range out {
		out[i] = entity.Restaurant{Name: "R", Address: "1 rue de Rome, Marseille", Dishes: []entity.Dish{}}
	}
	return out
}

func TestEnrich_PacingFloor(t *testing.T) {
	const k = 6
	var calls atomic.Int32
	instant := GeocoderFunc(func(context.Context, string) (Point, error) {
		calls.Add(1)
		return Point{Longitude: 5.38, Latitude: 43.29}, nil
	})
	e := NewEnricher(instant, Config{Delay: 100 * time.Millisecond}, discardLogger())

	start := time.Now()
	out, stats, err := e.Enrich(context.Background(), restaurantsWithAddresses(k))
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Len(t, out, k)
	assert.Equal(t, int32(k), calls.Load())
	assert.Equal(t, k, stats.Success)
	assert.GreaterOrEqual(t, elapsed, time.Duration(k-1)*100*time.Millisecond)
}

func TestEnrich_DelayAfterSlowRequest(t *testing.T) {
	const delay = 100 * time.Millisecond
	var starts, ends []time.Time
	slowFirst := GeocoderFunc(func(context.Context, string) (Point, error) {
		starts = append(starts, time.Now())
		if len(starts) == 1 {
			time.Sleep(150 * time.Millisecond)
		}
		ends = append(ends, time.Now())
		return Point{Longitude: 5.38, Latitude: 43.29}, nil
	})
	e := NewEnricher(slowFirst, Config{Delay: delay}, discardLogger())

	_, stats, err := e.Enrich(context.Background(), restaurantsWithAddresses(3))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Success)
	require.Len(t, starts, 3)
	for i := 1; i < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(ends[i-1]), delay, "gap before request %d", i)
	}
}

func TestEnrich_NoAddressDoesNotConsumePacing(t *testing.T) {
	var calls atomic.Int32
	g := GeocoderFunc(func(context.Context, string) (Point, error) {
		calls.Add(1)
		return Point{}, nil
	})
	e := NewEnricher(g, Config{Delay: time.Hour}, discardLogger())

	in := []entity.Restaurant{{Name: "A"}, {Name: "B", Address: "   "}, {Name: "C", Address: "2 rue"}}
	out, stats, err := e.Enrich(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 2, stats.NoAddress)
	assert.Equal(t, 1, stats.Success)
	assert.Equal(t, string(constants.GeocodingSuccess), out[2].GeocodingStatus)
}

func TestEnrich_StatusClassification(t *testing.T) {
	g := GeocoderFunc(func(_ context.Context, address string) (Point, error) {
		switch address {
		case "1 rue de Rome, Marseille":
			return Point{Longitude: 5.3811, Latitude: 43.2951}, nil
		default:
			return Point{}, ErrNoResult
		}
	})
	e := NewEnricher(g, Config{Delay: time.Millisecond}, discardLogger())

	in := []entity.Restaurant{
		{Name: "Sans adresse", Address: ""},
		{Name: "Introuvable", Address: "Atlantide"},
		{Name: "Chez Lili", Address: "1 rue de Rome, Marseille"},
	}
	out, stats, err := e.Enrich(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, string(constants.GeocodingNoAddress), out[0].GeocodingStatus)
	assert.Nil(t, out[0].Longitude)

	assert.Equal(t, string(constants.GeocodingFailed), out[1].GeocodingStatus)
	assert.Nil(t, out[1].Latitude)

	assert.Equal(t, string(constants.GeocodingSuccess), out[2].GeocodingStatus)
	require.NotNil(t, out[2].Longitude)
	require.NotNil(t, out[2].Latitude)
	assert.InDelta(t, 5.3811, *out[2].Longitude, 1e-9)
	assert.InDelta(t, 43.2951, *out[2].Latitude, 1e-9)

	assert.Equal(t, Stats{Total: 3, Success: 1, Failed: 1, NoAddress: 1}, stats)
	assert.InDelta(t, 33.33, stats.Percent(stats.Success), 0.01)

	// input is left untouched
	assert.Empty(t, in[2].GeocodingStatus)
	assert.Nil(t, in[2].Longitude)
}

func TestEnrich_TimeoutOnlyFailsThatRestaurant(t *testing.T) {
	g := GeocoderFunc(func(ctx context.Context, address string) (Point, error) {
		if address == "lent" {
			<-ctx.Done()
			return Point{}, ctx.Err()
		}
		return Point{Longitude: 1, Latitude: 2}, nil
	})
	e := NewEnricher(g, Config{Delay: time.Millisecond, Timeout: 20 * time.Millisecond}, discardLogger())

	out, stats, err := e.Enrich(context.Background(), []entity.Restaurant{
		{Name: "A", Address: "lent"},
		{Name: "B", Address: "rapide"},
	})
	require.NoError(t, err)
	assert.Equal(t, string(constants.GeocodingFailed), out[0].GeocodingStatus)
	assert.Equal(t, string(constants.GeocodingSuccess), out[1].GeocodingStatus)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Success)
}

func TestEnrich_CancelledRunStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := GeocoderFunc(func(context.Context, string) (Point, error) {
		return Point{}, errors.New("must not be called")
	})
	e := NewEnricher(g, Config{}, discardLogger())

	out, _, err := e.Enrich(ctx, restaurantsWithAddresses(3))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out)
}

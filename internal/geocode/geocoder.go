package geocode

import (
	"context"
	"errors"
)

// ErrNoResult means the service answered but found nothing for the address.
var ErrNoResult = errors.New("no geocoding result")

// Point is a WGS84 position as returned by the geocoder.
type Point struct {
	Longitude float64
	Latitude  float64
}

// Geocoder resolves a free-form French postal address.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Point, error)
}

// GeocoderFunc adapts a function to Geocoder.
type GeocoderFunc func(ctx context.Context, address string) (Point, error)

func (f GeocoderFunc) Geocode(ctx context.Context, address string) (Point, error) {
	return f(ctx, address)
}

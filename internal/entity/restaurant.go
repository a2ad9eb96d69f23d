package entity

// Date is one festival day a dish is served.
type Date struct {
	Day   int `json:"day"`
	Month int `json:"month"`
}

// Dish is a single menu entry. Price stays free-form ("15 €", "15-20 €", "à partir de 12 €").
type Dish struct {
	Name        string   `json:"name"`
	Price       string   `json:"price"`
	Description string   `json:"description"`
	Vegetarian  bool     `json:"vegetarian"`
	Vegan       bool     `json:"vegan"`
	Dates       []Date   `json:"dates"`
	Services    []string `json:"services"`
}

// Restaurant is one participant extracted from a program page.
// Identity is (SourceFile, Name); nothing is merged across files.
type Restaurant struct {
	Name       string  `json:"name"`
	Address    string  `json:"address"`
	Phone      *string `json:"phone,omitempty"`
	Chef       *string `json:"chef,omitempty"`
	District   *string `json:"district,omitempty"`
	Dishes     []Dish  `json:"dishes"`
	SourceFile string  `json:"source_file"`

	// Set by the geocoding pass only.
	Longitude       *float64 `json:"longitude,omitempty"`
	Latitude        *float64 `json:"latitude,omitempty"`
	GeocodingStatus string   `json:"geocoding_status,omitempty"`
}

// Clone returns a deep copy so enrichment never mutates the extraction output.
func (r Restaurant) Clone() Restaurant {
	out := r
	out.Phone = clonePtr(r.Phone)
	out.Chef = clonePtr(r.Chef)
	out.District = clonePtr(r.District)
	out.Longitude = clonePtr(r.Longitude)
	out.Latitude = clonePtr(r.Latitude)
	if r.Dishes == nil {
		return out
	}
	out.Dishes = make([]Dish, len(r.Dishes))
	for i, d := range r.Dishes {
		d.Dates = cloneSlice(d.Dates)
		d.Services = cloneSlice(d.Services)
		out.Dishes[i] = d
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// cloneSlice keeps nil and empty distinct so JSON output ("null" vs "[]") is stable.
func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

package export

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kousskous/menu-extractor/internal/entity"
)

func TestRestaurantsXLSX_OneRowPerDish(t *testing.T) {
	district := "NOAILLES BELSUNCE"
	lon, lat := 5.38, 43.29
	restaurants := []entity.Restaurant{
		{
			Name:     "Chez Lili",
			Address:  "12 rue d'Aubagne",
			District: &district,
			Dishes: []entity.Dish{
				{Name: "Couscous royal", Price: "22 €", Dates: []entity.Date{{Day: 22, Month: 8}, {Day: 23, Month: 8}}, Services: []string{"midi", "soir"}},
				{Name: "Couscous légumes", Price: "16 €", Vegetarian: true, Vegan: true},
			},
			SourceFile:      "page_1.png",
			Longitude:       &lon,
			Latitude:        &lat,
			GeocodingStatus: "success",
		},
		{Name: "Sans plats", Address: "", Dishes: []entity.Dish{}, SourceFile: "page_2.png"},
	}

	b, err := NewService(slog.New(slog.NewTextHandler(io.Discard, nil))).RestaurantsXLSX(restaurants)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, headers, rows[0])

	assert.Equal(t, "Chez Lili", rows[1][0])
	assert.Equal(t, "NOAILLES BELSUNCE", rows[1][2])
	assert.Equal(t, "Couscous royal", rows[1][5])
	assert.Equal(t, "22/08, 23/08", rows[1][10])
	assert.Equal(t, "midi, soir", rows[1][11])
	assert.Equal(t, "success", rows[1][14])

	assert.Equal(t, "Couscous légumes", rows[2][5])
	assert.Equal(t, "oui", rows[2][8])

	assert.Equal(t, "Sans plats", rows[3][0])
	assert.Equal(t, "page_2.png", rows[3][15])
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "éé…", truncate("éééé", 3))
}

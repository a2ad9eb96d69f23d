package llm

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNormalizeAndSanitizeJSON_FrenchKeysInFence(t *testing.T) {
	raw := "Voici le résultat :\n```json\n" +
		`[{"nom": "Chez Lili", "adresse": " 12 rue d'Aubagne ", "telephone": null, "plats": [` +
		`{"nom": "Couscous royal", "prix": 15, "vegetarien": "non", "dates": ["22/08"], "service": "Dîner", "allergenes": "gluten"}` +
		`]}]` + "\n```"

	_, doc, notes, err := NormalizeAndSanitizeJSON([]byte(raw), discardLogger())
	require.NoError(t, err)
	assert.NotEmpty(t, notes)

	items := doc["restaurants"].([]any)
	require.Len(t, items, 1)
	r := items[0].(map[string]any)
	assert.Equal(t, "Chez Lili", r["name"])
	assert.Equal(t, "12 rue d'Aubagne", r["address"])
	assert.NotContains(t, r, "phone")
	assert.NotContains(t, r, "nom")

	dishes := r["dishes"].([]any)
	require.Len(t, dishes, 1)
	d := dishes[0].(map[string]any)
	assert.Equal(t, "Couscous royal", d["name"])
	assert.Equal(t, "15 €", d["price"])
	assert.Equal(t, false, d["vegetarian"])
	assert.Equal(t, []any{map[string]any{"day": float64(22), "month": float64(8)}}, d["dates"])
	assert.Equal(t, []any{"soir"}, d["services"])
	assert.NotContains(t, d, "allergenes")
}

func TestNormalizeAndSanitizeJSON_Containers(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		count int
	}{
		{"canonical", `{"restaurants": [{"name": "A"}, {"name": "B"}]}`, 2},
		{"null restaurants", `{"restaurants": null}`, 0},
		{"single object", `{"name": "A", "address": "1 rue"}`, 1},
		{"alternate key", `{"data": [{"name": "A"}]}`, 1},
		{"nested single", `{"restaurant": {"name": "A"}}`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, doc, _, err := NormalizeAndSanitizeJSON([]byte(tt.raw), discardLogger())
			require.NoError(t, err)
			assert.Len(t, doc["restaurants"], tt.count)
			assert.Contains(t, string(content), `"restaurants"`)
		})
	}
}

func TestNormalizeAndSanitizeJSON_CompetingSynonymsAreStable(t *testing.T) {
	raw := `{"restaurants": [{"nom": "Chez Lili", "telephone": "04 91 00 00 01", "tel": "04 91 00 00 02",` +
		` "plats": [{"nom": "Couscous", "vegetarien": "non", "végétarien": "oui"}]}]}`

	// map iteration order varies between runs; repeat to catch a dependence on it
	for i := 0; i < 50; i++ {
		_, doc, _, err := NormalizeAndSanitizeJSON([]byte(raw), discardLogger())
		require.NoError(t, err)

		r := doc["restaurants"].([]any)[0].(map[string]any)
		assert.Equal(t, "04 91 00 00 01", r["phone"])
		assert.NotContains(t, r, "tel")

		d := r["dishes"].([]any)[0].(map[string]any)
		assert.Equal(t, true, d["vegetarian"])
	}
}

func TestNormalizeAndSanitizeJSON_Malformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"Désolé, je ne peux pas lire cette image.",
		`{"restaurants": [{"name": "A"}`,
		`{"foo": 1}`,
		`{"restaurants": "none"}`,
	} {
		_, _, _, err := NormalizeAndSanitizeJSON([]byte(raw), discardLogger())
		assert.ErrorIs(t, err, ErrMalformedOutput, "input %q", raw)
	}
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "15 €", formatPrice(15))
	assert.Equal(t, "12,50 €", formatPrice(12.5))
}

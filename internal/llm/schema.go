package llm

import "github.com/kousskous/menu-extractor/constants"

// French mobile and landline numbers, with optional +33/0033 prefix and separators.
const PhonePattern = `^(?:(?:\+|00)33|0)\s*[1-9](?:[\s.-]*\d{2}){4}$`

// BuildExtractionJSONSchema returns the full response schema (draft 2020-12 subset).
// It is sent to the model as the output contract; locally it is only an advisory
// strict check, because salvage works per restaurant and per dish.
func BuildExtractionJSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"restaurants": map[string]any{
				"type":  "array",
				"items": BuildRestaurantJSONSchema(true),
			},
		},
		"required": []string{"restaurants"},
	}
}

// BuildRestaurantJSONSchema describes one restaurant. withDishes=false yields the
// shell used to validate restaurant-level fields on their own.
func BuildRestaurantJSONSchema(withDishes bool) map[string]any {
	props := map[string]any{
		"name":     map[string]any{"type": "string", "minLength": 1},
		"address":  map[string]any{"type": "string"},
		"phone":    map[string]any{"type": "string", "pattern": PhonePattern},
		"chef":     map[string]any{"type": "string", "minLength": 1},
		"district": map[string]any{"type": "string", "enum": constants.Districts()},
	}
	if withDishes {
		props["dishes"] = map[string]any{
			"type":  "array",
			"items": BuildDishJSONSchema(),
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   []string{"name"},
	}
}

// BuildDishJSONSchema describes one dish after sanitizing.
func BuildDishJSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":        map[string]any{"type": "string", "minLength": 1},
			"price":       map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"vegetarian":  map[string]any{"type": "boolean"},
			"vegan":       map[string]any{"type": "boolean"},
			"dates": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"day":   map[string]any{"type": "integer", "minimum": 1, "maximum": 31},
						"month": map[string]any{"type": "integer", "minimum": 1, "maximum": 12},
					},
					"required": []string{"day", "month"},
				},
			},
			"services": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string", "enum": constants.AllServices()},
			},
		},
		"required": []string{"name"},
	}
}

package llm

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kousskous/menu-extractor/constants"
	"github.com/kousskous/menu-extractor/internal/entity"
)

var rePhone = regexp.MustCompile(PhonePattern)

// SalvageResult is always constructible: valid restaurants and dishes are
// kept, everything dropped along the way is listed in Rejections.
type SalvageResult struct {
	Restaurants []entity.Restaurant
	Rejections  []entity.Rejection
}

// Empty reports whether nothing usable came out of the page.
func (r SalvageResult) Empty() bool { return len(r.Restaurants) == 0 }

// Salvager validates restaurants and dishes independently so that one bad
// dish never costs the restaurant, and one bad restaurant never costs the page.
type Salvager struct {
	shell *jsonschema.Schema
	dish  *jsonschema.Schema
}

func NewSalvager() (*Salvager, error) {
	shell, err := CompileSchema(BuildRestaurantJSONSchema(false))
	if err != nil {
		return nil, fmt.Errorf("restaurant schema: %w", err)
	}
	dish, err := CompileSchema(BuildDishJSONSchema())
	if err != nil {
		return nil, fmt.Errorf("dish schema: %w", err)
	}
	return &Salvager{shell: shell, dish: dish}, nil
}

// Salvage builds restaurants from a sanitized {"restaurants": [...]} document.
func (s *Salvager) Salvage(doc map[string]any, sourceFile string) SalvageResult {
	res := SalvageResult{Restaurants: []entity.Restaurant{}}
	reject := func(path, format string, args ...any) {
		res.Rejections = append(res.Rejections, entity.Rejection{Path: path, Reason: fmt.Sprintf(format, args...)})
	}

	items, ok := doc["restaurants"].([]any)
	if !ok {
		reject("/restaurants", "missing or not an array")
		return res
	}

	for i, item := range items {
		path := fmt.Sprintf("/restaurants/%d", i)
		m, ok := item.(map[string]any)
		if !ok {
			reject(path, "not an object (%T)", item)
			continue
		}
		r, ok := s.salvageRestaurant(m, path, reject)
		if !ok {
			continue
		}
		r.SourceFile = sourceFile
		res.Restaurants = append(res.Restaurants, r)
	}
	return res
}

func (s *Salvager) salvageRestaurant(m map[string]any, path string, reject func(string, string, ...any)) (entity.Restaurant, bool) {
	shell := make(map[string]any, len(m))
	for k, v := range m {
		if k != "dishes" {
			shell[k] = v
		}
	}

	// Optional fields degrade to absent rather than failing the record.
	if v, present := shell["address"]; present {
		if _, ok := v.(string); !ok {
			delete(shell, "address")
			reject(path+"/address", "not a string (%T)", v)
		}
	}
	if v, present := shell["phone"]; present {
		if str, ok := v.(string); !ok || !rePhone.MatchString(str) {
			delete(shell, "phone")
			reject(path+"/phone", "not a French phone number: %v", v)
		}
	}
	if v, present := shell["chef"]; present {
		if str, ok := v.(string); !ok || str == "" {
			delete(shell, "chef")
			reject(path+"/chef", "not a non-empty string (%T)", v)
		}
	}
	if v, present := shell["district"]; present {
		str, _ := v.(string)
		if canon, ok := constants.CanonicalizeDistrict(str); ok {
			shell["district"] = string(canon)
		} else {
			delete(shell, "district")
			reject(path+"/district", "unknown district: %v", v)
		}
	}

	if err := validateValue(s.shell, shell); err != nil {
		reject(path, "restaurant rejected: %v", err)
		return entity.Restaurant{}, false
	}

	var r entity.Restaurant
	if err := roundTrip(shell, &r); err != nil {
		reject(path, "restaurant rejected: %v", err)
		return entity.Restaurant{}, false
	}

	r.Dishes = []entity.Dish{}
	switch dishes := m["dishes"].(type) {
	case nil:
	case []any:
		for j, d := range dishes {
			dpath := fmt.Sprintf("%s/dishes/%d", path, j)
			dish, ok := s.salvageDish(d, dpath, reject)
			if ok {
				r.Dishes = append(r.Dishes, dish)
			}
		}
	default:
		reject(path+"/dishes", "not an array (%T)", dishes)
	}
	return r, true
}

func (s *Salvager) salvageDish(d any, path string, reject func(string, string, ...any)) (entity.Dish, bool) {
	m, ok := d.(map[string]any)
	if !ok {
		reject(path, "not an object (%T)", d)
		return entity.Dish{}, false
	}
	dish := make(map[string]any, len(m))
	for k, v := range m {
		dish[k] = v
	}

	// A bad date or service tag is dropped on its own; the dish survives.
	if dates, ok := dish["dates"].([]any); ok {
		kept := make([]any, 0, len(dates))
		for i, dt := range dates {
			if validDate(dt) {
				kept = append(kept, dt)
			} else {
				reject(fmt.Sprintf("%s/dates/%d", path, i), "invalid date: %v", dt)
			}
		}
		dish["dates"] = kept
	}
	if services, ok := dish["services"].([]any); ok {
		kept := make([]any, 0, len(services))
		seen := map[string]bool{}
		for i, sv := range services {
			str, _ := sv.(string)
			canon, ok := constants.CanonicalizeService(str)
			if !ok {
				reject(fmt.Sprintf("%s/services/%d", path, i), "unknown service: %v", sv)
				continue
			}
			if !seen[string(canon)] {
				seen[string(canon)] = true
				kept = append(kept, string(canon))
			}
		}
		dish["services"] = kept
	}

	if err := validateValue(s.dish, dish); err != nil {
		reject(path, "dish rejected: %v", err)
		return entity.Dish{}, false
	}

	var out entity.Dish
	if err := roundTrip(dish, &out); err != nil {
		reject(path, "dish rejected: %v", err)
		return entity.Dish{}, false
	}
	if out.Dates == nil {
		out.Dates = []entity.Date{}
	}
	if out.Services == nil {
		out.Services = []string{}
	}
	return out, true
}

func validDate(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	day, ok1 := wholeNumber(m["day"])
	month, ok2 := wholeNumber(m["month"])
	return ok1 && ok2 && day >= 1 && day <= 31 && month >= 1 && month <= 12
}

func wholeNumber(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

func roundTrip(in any, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

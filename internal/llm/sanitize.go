package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/kousskous/menu-extractor/constants"
)

// ErrMalformedOutput means the model answer could not be decoded into the
// {"restaurants": [...]} shape at all. It is retryable.
var ErrMalformedOutput = errors.New("malformed model output")

var (
	reFence    = regexp.MustCompile("(?s)^\\s*```[a-zA-Z]*\\s*(.*?)\\s*```\\s*$")
	reSlashDay = regexp.MustCompile(`^\s*(\d{1,2})\s*[/.-]\s*(\d{1,2})\s*$`)
)

// synonym renames a French or legacy key to its schema name. Lists are
// ordered: when two synonyms of one field are present, the earlier one wins.
type synonym struct{ from, to string }

var restaurantSynonyms = []synonym{
	{"nom", "name"},
	{"adresse", "address"},
	{"téléphone", "phone"},
	{"telephone", "phone"},
	{"tel", "phone"},
	{"quartier", "district"},
	{"neighborhood", "district"},
	{"plats", "dishes"},
	{"menu", "dishes"},
	{"chefs", "chef"},
}

var dishSynonyms = []synonym{
	{"nom", "name"},
	{"prix", "price"},
	{"végétarien", "vegetarian"},
	{"vegetarien", "vegetarian"},
	{"végan", "vegan"},
	{"dates_disponibles", "dates"},
	{"jours", "dates"},
	{"service", "services"},
}

var dateSynonyms = []synonym{
	{"jour", "day"},
	{"mois", "month"},
}

var (
	restaurantKeys = keySet("name", "address", "phone", "chef", "district", "dishes")
	dishKeys       = keySet("name", "price", "description", "vegetarian", "vegan", "dates", "services")
)

// NormalizeAndSanitizeJSON turns a model answer into {"restaurants": [...]}:
// - strips markdown fences and chatter around the JSON value
// - wraps a bare array or a single restaurant object
// - renames French/legacy keys to the schema names
// - drops null/empty values and unknown keys
// - coerces prices, booleans, dates and services to their schema types
// It only fails (ErrMalformedOutput) when no restaurants container can be found;
// item-level problems are left for Salvage to judge.
func NormalizeAndSanitizeJSON(raw []byte, logger *slog.Logger) ([]byte, map[string]any, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	body, err := extractJSONValue(string(raw))
	if err != nil {
		return nil, nil, nil, err
	}

	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: decode: %v", ErrMalformedOutput, err)
	}

	notes := make([]string, 0, 8)
	items, err := restaurantsContainer(v, &notes)
	if err != nil {
		return nil, nil, nil, err
	}

	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue // Salvage rejects it with a path
		}
		sanitizeRestaurant(m, fmt.Sprintf("/restaurants/%d", i), &notes)
	}

	doc := map[string]any{"restaurants": items}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, notes, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(notes) > 0 {
		logger.Debug("llm.extract.normalize_sanitize", "notes", notes)
	}
	return out, doc, notes, nil
}

func extractJSONValue(s string) (string, error) {
	s = strings.TrimSpace(s)
	if m := reFence.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	if s == "" {
		return "", fmt.Errorf("%w: empty content", ErrMalformedOutput)
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", fmt.Errorf("%w: no JSON value found", ErrMalformedOutput)
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return "", fmt.Errorf("%w: unterminated JSON value", ErrMalformedOutput)
	}
	return s[start : end+1], nil
}

func restaurantsContainer(v any, notes *[]string) ([]any, error) {
	switch t := v.(type) {
	case []any:
		*notes = append(*notes, "root(array->restaurants)")
		return t, nil
	case map[string]any:
		for _, key := range []string{"restaurants", "restaurant", "data", "results"} {
			inner, ok := t[key]
			if !ok {
				continue
			}
			if key != "restaurants" {
				*notes = append(*notes, "root("+key+"->restaurants)")
			}
			switch it := inner.(type) {
			case []any:
				return it, nil
			case map[string]any:
				return []any{it}, nil
			case nil:
				return []any{}, nil
			default:
				return nil, fmt.Errorf("%w: %q is %T, want array", ErrMalformedOutput, key, inner)
			}
		}
		if _, ok := t["name"]; ok {
			*notes = append(*notes, "root(object->restaurants)")
			return []any{t}, nil
		}
		if _, ok := t["nom"]; ok {
			*notes = append(*notes, "root(object->restaurants)")
			return []any{t}, nil
		}
		return nil, fmt.Errorf("%w: missing restaurants array", ErrMalformedOutput)
	default:
		return nil, fmt.Errorf("%w: root is %T", ErrMalformedOutput, v)
	}
}

func sanitizeRestaurant(m map[string]any, path string, notes *[]string) {
	renameKeys(m, restaurantSynonyms, path, notes)
	dropUnknown(m, restaurantKeys, path, notes)

	for _, k := range []string{"name", "address", "phone", "chef", "district"} {
		trimOrDrop(m, k, path, notes)
	}
	if d, ok := m["district"].(string); ok {
		if canon, found := constants.CanonicalizeDistrict(d); found && string(canon) != d {
			m["district"] = string(canon)
		}
	}

	switch dishes := m["dishes"].(type) {
	case nil:
		if _, present := m["dishes"]; present {
			delete(m, "dishes")
			*notes = append(*notes, path+"/dishes(null)")
		}
	case map[string]any:
		m["dishes"] = []any{dishes}
		*notes = append(*notes, path+"/dishes(object->array)")
		sanitizeDish(dishes, path+"/dishes/0", notes)
	case []any:
		for j, d := range dishes {
			if dm, ok := d.(map[string]any); ok {
				sanitizeDish(dm, fmt.Sprintf("%s/dishes/%d", path, j), notes)
			}
		}
	}
}

func sanitizeDish(m map[string]any, path string, notes *[]string) {
	renameKeys(m, dishSynonyms, path, notes)
	dropUnknown(m, dishKeys, path, notes)

	trimOrDrop(m, "name", path, notes)
	for _, k := range []string{"price", "description"} {
		switch t := m[k].(type) {
		case nil:
			if _, present := m[k]; present {
				delete(m, k)
				*notes = append(*notes, path+"/"+k+"(null)")
			}
		case float64:
			m[k] = formatPrice(t)
			*notes = append(*notes, path+"/"+k+"(number->string)")
		case string:
			m[k] = strings.TrimSpace(t)
		}
	}
	for _, k := range []string{"vegetarian", "vegan"} {
		switch t := m[k].(type) {
		case nil:
			if _, present := m[k]; present {
				delete(m, k)
			}
		case string:
			if b, ok := parseLooseBool(t); ok {
				m[k] = b
				*notes = append(*notes, path+"/"+k+"(string->bool)")
			}
		}
	}

	switch t := m["dates"].(type) {
	case nil:
		delete(m, "dates")
	case []any:
		for i, d := range t {
			t[i] = sanitizeDate(d)
		}
	case string, map[string]any:
		m["dates"] = []any{sanitizeDate(t)}
		*notes = append(*notes, path+"/dates(scalar->array)")
	}

	switch t := m["services"].(type) {
	case nil:
		delete(m, "services")
	case string:
		m["services"] = []any{canonicalService(t)}
		*notes = append(*notes, path+"/services(string->array)")
	case []any:
		for i, s := range t {
			if str, ok := s.(string); ok {
				t[i] = canonicalService(str)
			}
		}
	}
}

func sanitizeDate(d any) any {
	switch t := d.(type) {
	case string:
		if mm := reSlashDay.FindStringSubmatch(t); mm != nil {
			day, _ := strconv.Atoi(mm[1])
			month, _ := strconv.Atoi(mm[2])
			return map[string]any{"day": float64(day), "month": float64(month)}
		}
		return t
	case map[string]any:
		renameKeys(t, dateSynonyms, "", nil)
		for _, k := range []string{"day", "month"} {
			if s, ok := t[k].(string); ok {
				if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
					t[k] = float64(n)
				}
			}
		}
		return t
	default:
		return d
	}
}

func canonicalService(s string) string {
	if canon, ok := constants.CanonicalizeService(s); ok {
		return string(canon)
	}
	return strings.TrimSpace(s)
}

func renameKeys(m map[string]any, synonyms []synonym, path string, notes *[]string) {
	for _, syn := range synonyms {
		v, ok := m[syn.from]
		if !ok {
			continue
		}
		// don't overwrite existing value if already present
		if _, exists := m[syn.to]; !exists {
			m[syn.to] = v
		}
		delete(m, syn.from)
		if notes != nil {
			*notes = append(*notes, path+"/"+syn.from+"->"+syn.to)
		}
	}
}

func dropUnknown(m map[string]any, allowed map[string]struct{}, path string, notes *[]string) {
	for k := range m {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			*notes = append(*notes, path+"/"+k+"(unknown)")
		}
	}
}

func trimOrDrop(m map[string]any, k, path string, notes *[]string) {
	switch t := m[k].(type) {
	case nil:
		if _, present := m[k]; present {
			delete(m, k)
			*notes = append(*notes, path+"/"+k+"(null)")
		}
	case string:
		s := strings.TrimSpace(t)
		if s == "" || strings.EqualFold(s, "null") {
			delete(m, k)
			*notes = append(*notes, path+"/"+k+"(empty)")
		} else {
			m[k] = s
		}
	}
}

func parseLooseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "oui", "yes", "vrai", "1":
		return true, true
	case "false", "non", "no", "faux", "0":
		return false, true
	}
	return false, false
}

func formatPrice(f float64) string {
	if f == math.Trunc(f) {
		return fmt.Sprintf("%.0f €", f)
	}
	return strings.Replace(fmt.Sprintf("%.2f €", f), ".", ",", 1)
}

func keySet(keys ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out
}

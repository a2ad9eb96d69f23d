package constants

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

type District string

const (
	NoaillesBelsunce District = "NOAILLES BELSUNCE"
	Opera            District = "OPERA, HAXO, SAINTE, ESTIENNE D'ORVES"
	Prefecture       District = "PALAIS DE JUSTICE, PRÉFECTURE, GRIGNAN, ROSTAND, BRETEUIL, CASTELLANE, VAUBAN"
	VieuxPort        District = "VIEUX PORT, PANIER, REPUBLIQUE, JOLIETTE"
	SaintVictor      District = "SAINT-VICTOR, CATALANS, CORNICHE, CHATEAU D'IF, PRADO"
	Canebiere        District = "CANEBIÈRE, RÉFORMÉS-CONSOLAT, LIBÉRATION, LONGCHAMP, SAINT-CHARLES"
	CoursJulien      District = "COURS JULIEN, NOTRE-DAME-DU-MONT, CAMAS, SAINT-PIERRE, CHAVE"
	BelleDeMai       District = "BELLE DE MAI, CHUTES-LAVIE"
	SainteMarthe     District = "PLAN D'AOU, SAINTE-MARTHE, LA CABUCELLE, LA ROSE"
	Estaque          District = "L'ESTAQUE, NIOLON, LE ROVE"
)

var allDistricts = []District{
	NoaillesBelsunce,
	Opera,
	Prefecture,
	VieuxPort,
	SaintVictor,
	Canebiere,
	CoursJulien,
	BelleDeMai,
	SainteMarthe,
	Estaque,
}

// Districts returns the festival districts as plain strings (prompt + schema enum).
func Districts() []string {
	result := make([]string, len(allDistricts))
	for i, d := range allDistricts {
		result[i] = string(d)
	}
	return result
}

// CanonicalizeDistrict maps a model-produced label onto a festival district.
// Matching ignores case and accents, and accepts the first neighbourhood of a
// district on its own ("Noailles", "Cours Julien").
func CanonicalizeDistrict(input string) (District, bool) {
	normalized := foldLabel(input)
	if normalized == "" {
		return "", false
	}
	for _, d := range allDistricts {
		full := foldLabel(string(d))
		if normalized == full {
			return d, true
		}
		for _, part := range strings.Split(full, ",") {
			if strings.TrimSpace(part) == normalized {
				return d, true
			}
		}
		if first, _, _ := strings.Cut(full, " "); first == normalized && len(first) > 4 {
			return d, true
		}
	}
	return "", false
}

type Service string

const (
	ServiceLunch  Service = "midi"
	ServiceDinner Service = "soir"
)

// AllServices is what a dish gets when the page names no service.
func AllServices() []string {
	return []string{string(ServiceLunch), string(ServiceDinner)}
}

// CanonicalizeService accepts the French tags and their common English synonyms.
func CanonicalizeService(input string) (Service, bool) {
	synonyms := map[string]Service{
		"midi":     ServiceLunch,
		"dejeuner": ServiceLunch,
		"lunch":    ServiceLunch,
		"noon":     ServiceLunch,
		"soir":     ServiceDinner,
		"diner":    ServiceDinner,
		"dinner":   ServiceDinner,
		"evening":  ServiceDinner,
	}
	s, ok := synonyms[foldLabel(input)]
	return s, ok
}

func foldLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range norm.NFD.String(s) {
		// drop combining marks (accents)
		if r >= 0x300 && r <= 0x36f {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

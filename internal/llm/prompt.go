package llm

import (
	"strings"

	"github.com/kousskous/menu-extractor/constants"
)

// DefaultBusinessContext describes the festival program to the model.
const DefaultBusinessContext = `Le festival Kouss Kouss 2025 est un festival culinaire marseillais consacré au couscous. Le programme de ce festival est disponible sous forme de PDF sur le site du festival : https://kousskouss.com/. Malheureusement, il s'agit d'un document PDF qui n'est pas pratique à utiliser pour trouver le couscous que l'on souhaite aller manger. L'image fournie est une page du programme du festival.
Parfois des éléments ne sont pas des plats ou des restaurants, par exemple : "KOUSS•ESSENTIELS CUISINE
Dans l'univers des ustensiles de cuisine, on trouvera des couscoussiers mais aussi des moules à panisses et des plaques de cuisson en cuivre pour la cade, la socca. Au rayon art de la table, toute une sélection pour servir vos créations culinaires."
n'est pas un plat et ne concerne donc pas un restaurant, il faut donc l'ignorer.
Un plat sur une page n'est rattaché qu'à un seul restaurant.`

// BuildSystemPrompt composes the system message: output contract, field rules and the festival context.
func BuildSystemPrompt(req ExtractRequest) string {
	bizContext := strings.TrimSpace(req.BusinessContext)
	if bizContext == "" {
		bizContext = DefaultBusinessContext
	}

	parts := []string{
		"Tu extrais les plats et restaurants d'une page du programme du festival Kouss Kouss 2025.",
		`Réponds UNIQUEMENT avec un objet JSON de la forme {"restaurants": [...]} conforme au JSON Schema fourni.`,
		"Le nom du restaurant est écrit en blanc sur fond sombre.",
		"Garde le prix dans son format original avec €, par exemple '15 €', '15-20 €' ou 'à partir de 15 €'.",
		"vegetarian et vegan valent true ou false ; si rien n'est indiqué, déduis-le de la description.",
		"Le festival dure du 22 août au 7 septembre 2025 : chaque date est {\"day\": jour, \"month\": mois}. " +
			"'Tous les jours', 'toute l'année' ou 'toute la durée du festival' signifie tous les jours du festival.",
		"services contient '" + strings.Join(constants.AllServices(), "' et/ou '") + "'. Si rien n'est indiqué, le plat est disponible à tous les services.",
		"district doit être exactement un des quartiers suivants : " + strings.Join(constants.Districts(), " | ") + ".",
		"Le téléphone est un numéro français ; omets-le s'il n'est pas lisible.",
		"N'écris jamais null. Si un champ est absent, omets-le.",
		"Contexte : " + bizContext,
	}
	return strings.Join(parts, "\n")
}

// BuildUserPrompt packages the filename hint; the page itself travels as an image part.
func BuildUserPrompt(req ExtractRequest) string {
	var b strings.Builder
	if name := strings.TrimSpace(req.Filename); name != "" {
		b.WriteString("Fichier : ")
		b.WriteString(name)
		b.WriteString("\n")
	}
	b.WriteString("L'image jointe est une page du programme. Extrais tous les restaurants et leurs plats.")
	return b.String()
}

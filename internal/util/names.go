package util

import (
	"math/rand/v2"
)

var (
	maleFirstNames = []string{
		"James", "John", "Robert", "Michael", "William", "David", "Thomas", "Daniel",
		"Pierre", "Louis", "Antoine", "Hugo", "Julien", "Nicolas",
	}
	femaleFirstNames = []string{
		"Mary", "Patricia", "Jennifer", "Linda", "Elizabeth", "Susan", "Sarah", "Emma",
		"Camille", "Chloé", "Léa", "Manon", "Inès", "Juliette",
	}
	lastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Jones", "Miller", "Davis", "Wilson",
		"Martin", "Bernard", "Dubois", "Durand", "Lefèvre", "Moreau",
	}
)

// GeneratePatientName returns a synthetic name in DICOM PN form
// ("LASTNAME^FIRSTNAME"). Sex should be "M" or "F"; anything else picks from
// the female list.
func GeneratePatientName(sex string, rng *rand.Rand) string {
	first := femaleFirstNames
	if sex == "M" {
		first = maleFirstNames
	}
	return lastNames[rng.IntN(len(lastNames))] + "^" + first[rng.IntN(len(first))]
}

package normalizer

import (
	"strings"

	"github.com/hikeshare/importer/internal/entities"
)

// difficultyKeywords maps provider difficulty vocabulary onto the
// canonical scale. Matching is case-insensitive substring matching, so
// "Blue Square" and "intermediate/advanced" both resolve. Expert
// keywords are checked first so "expert" never downgrades to hard via
// a partial match.
var difficultyKeywords = []struct {
	tokens []string
	level  entities.Difficulty
}{
	{[]string{"expert", "extreme", "technical", "double black"}, entities.DifficultyExpert},
	{[]string{"black", "hard", "difficult", "advanced", "strenuous"}, entities.DifficultyHard},
	{[]string{"blue", "moderate", "intermediate", "medium"}, entities.DifficultyModerate},
	{[]string{"green", "easy", "beginner", "gentle", "family"}, entities.DifficultyEasy},
}

// StandardizeDifficulty resolves free-text or coded difficulty into the
// canonical enum. Unrecognized or absent values default to moderate;
// a missing difficulty never aborts normalization.
func StandardizeDifficulty(text string) entities.Difficulty {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return entities.DifficultyModerate
	}

	for _, entry := range difficultyKeywords {
		for _, token := range entry.tokens {
			if strings.Contains(lowered, token) {
				return entry.level
			}
		}
	}

	return entities.DifficultyModerate
}

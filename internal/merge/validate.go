package merge

import (
	"fmt"

	"github.com/guarzo/pokepack/internal/model"
)

const DefaultValidateSample = 100

// Validate checks the first limit cards for missing required fields and
// returns one message per problem.
func Validate(cards []model.Card, limit int) []string {
	if limit <= 0 || limit > len(cards) {
		limit = len(cards)
	}

	var issues []string
	for i, c := range cards[:limit] {
		if c.ID == "" {
			issues = append(issues, fmt.Sprintf("card %d: missing id", i))
		}
		if c.Name == "" {
			issues = append(issues, fmt.Sprintf("card %d (%s): missing name", i, c.ID))
		}
		if c.SetName() == "" {
			issues = append(issues, fmt.Sprintf("card %d (%s): missing set", i, c.ID))
		}
	}
	return issues
}

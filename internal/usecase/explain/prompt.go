package explain

import (
	"fmt"
	"strings"
)

// Pair is the two profiles to explain.
type Pair struct {
	AName  string
	ALikes []string
	BName  string
	BLikes []string
}

// BuildPrompt renders the match-explanation prompt, paragraphs separated by a blank line.
func BuildPrompt(p Pair) string {
	return strings.Join([]string{
		"You are a friendly match assistant.",
		fmt.Sprintf("Explain in 2-3 short paragraphs why %s and %s would be a good match based on these likes:", p.AName, p.BName),
		fmt.Sprintf("%s: %s", p.AName, strings.Join(p.ALikes, ", ")),
		fmt.Sprintf("%s: %s", p.BName, strings.Join(p.BLikes, ", ")),
		"Keep the tone positive and mention common interests.",
	}, "\n\n")
}

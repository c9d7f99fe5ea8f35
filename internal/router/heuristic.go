package router

import (
	"regexp"
	"strings"
)

var (
	codeRegex   = regexp.MustCompile(`(?i)\b(func|class|def|package|import|select|insert|update|delete)\b`)
	reasonRegex = regexp.MustCompile(`(?i)\b(analyze|reason|think through|derive|prove|why|tradeoff)\b`)
	quickRegex  = regexp.MustCompile(`(?i)\b(what is|define|quick|brief|summary)\b`)
	codeFence   = regexp.MustCompile("```")
)

// heuristicScore estimates the local generator's odds of handling query
// well, in [0,1], from cheap content signals — no model invocation. Code
// and multi-step-reasoning queries score low (the local model is weakest
// there); short factual-lookup-shaped queries score high.
func heuristicScore(query string) float64 {
	content := strings.TrimSpace(query)
	if content == "" {
		return 0
	}
	lower := strings.ToLower(content)

	score := 0.5
	if codeFence.MatchString(lower) || codeRegex.MatchString(lower) {
		score -= 0.3
	}
	if reasonRegex.MatchString(lower) {
		score -= 0.2
	}
	if quickRegex.MatchString(lower) || len(lower) < 80 {
		score += 0.3
	}
	if len(lower) > 500 {
		score -= 0.15
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

package swarm

import (
	"regexp"

	"github.com/opus-nx/swarm/pkg/models"
)

// Complexity buckets for heuristic effort routing when the maestro
// produces no usable plan.
type complexity string

const (
	complexitySimple   complexity = "simple"
	complexityStandard complexity = "standard"
	complexityComplex  complexity = "complex"
)

var simplePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(?:hi|hello|hey|thanks|thank you|ok|sure|yes|no)\b`),
	regexp.MustCompile(`(?i)^(?:what (?:is|are)|who (?:is|are)|when (?:did|was|is))\b`),
	regexp.MustCompile(`(?i)^(?:define|explain briefly|summarize)\b`),
}

var complexPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:debug|troubleshoot|diagnose|fix (?:the|this|my))\b`),
	regexp.MustCompile(`(?i)(?:architect|design|plan|strategy|analyze in depth)\b`),
	regexp.MustCompile(`(?i)(?:compare and contrast|trade-?offs?|pros? and cons?)\b`),
	regexp.MustCompile(`(?i)(?:research|investigate|deep dive|comprehensive)\b`),
	regexp.MustCompile(`(?i)(?:step by step|multi-?step|workflow|pipeline)\b`),
	regexp.MustCompile(`(?i)(?:refactor|optimize|improve performance)\b`),
}

var effortByComplexity = map[complexity]models.EffortLevel{
	complexitySimple:   models.EffortMedium,
	complexityStandard: models.EffortHigh,
	complexityComplex:  models.EffortMax,
}

// classifyComplexity buckets a query by surface patterns. Simple
// greetings and lookups win over complex markers when both match.
func classifyComplexity(query string) complexity {
	for _, p := range simplePatterns {
		if p.MatchString(query) {
			return complexitySimple
		}
	}
	for _, p := range complexPatterns {
		if p.MatchString(query) {
			return complexityComplex
		}
	}
	return complexityStandard
}

// fallbackEffort maps a query to the effort level used for agents the
// maestro plan left unassigned.
func fallbackEffort(query string) models.EffortLevel {
	return effortByComplexity[classifyComplexity(query)]
}

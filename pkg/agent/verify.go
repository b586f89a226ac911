package agent

import (
	"fmt"
	"math"
)

// stepIssue is one problem found in a verified reasoning step.
type stepIssue struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// stepScore is the verdict for one reasoning step.
type stepScore struct {
	NodeID      string      `json:"node_id"`
	Verdict     string      `json:"verdict"`
	Confidence  float64     `json:"confidence"`
	Explanation string      `json:"explanation"`
	Issues      []stepIssue `json:"issues"`
}

// chainPattern is a structural weakness detected across verified steps.
type chainPattern struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	AffectedSteps []int  `json:"affected_steps"`
}

// chainScore computes the overall score for a verified chain. Correct
// steps contribute their confidence, incorrect steps penalize heavily,
// and the geometric mean keeps long chains from collapsing to zero.
func chainScore(steps []stepScore) float64 {
	if len(steps) == 0 {
		return 0.0
	}

	score := 1.0
	for _, s := range steps {
		switch s.Verdict {
		case "correct":
			score *= s.Confidence
		case "incorrect":
			score *= (1 - s.Confidence) * 0.3
		case "neutral":
			score *= 0.9
		default: // uncertain
			score *= 0.7
		}
	}

	return round2(math.Pow(score, 1.0/float64(len(steps))))
}

// detectChainPatterns finds structural weaknesses across verified
// steps: declining confidence, recurring issue types, and errors that
// follow high-confidence steps.
func detectChainPatterns(steps []stepScore) []chainPattern {
	var patterns []chainPattern

	if len(steps) >= 3 {
		decreasing := true
		for i := 1; i < len(steps); i++ {
			if steps[i].Confidence > steps[i-1].Confidence {
				decreasing = false
				break
			}
		}
		if decreasing && steps[0].Confidence-steps[len(steps)-1].Confidence > 0.2 {
			affected := make([]int, len(steps))
			for i := range affected {
				affected[i] = i
			}
			patterns = append(patterns, chainPattern{
				Name: "declining_confidence",
				Description: "Confidence decreases through the chain, suggesting " +
					"reasoning becomes less certain over time.",
				AffectedSteps: affected,
			})
		}
	}

	issueSteps := map[string][]int{}
	var issueOrder []string
	for i, s := range steps {
		for _, issue := range s.Issues {
			if _, seen := issueSteps[issue.Type]; !seen {
				issueOrder = append(issueOrder, issue.Type)
			}
			issueSteps[issue.Type] = append(issueSteps[issue.Type], i)
		}
	}
	for _, issueType := range issueOrder {
		affected := issueSteps[issueType]
		if len(affected) >= 2 {
			patterns = append(patterns, chainPattern{
				Name: "recurring_" + issueType,
				Description: fmt.Sprintf("The issue %q appears in %d steps, "+
					"suggesting a systematic problem.", issueType, len(affected)),
				AffectedSteps: affected,
			})
		}
	}

	for i := 1; i < len(steps); i++ {
		prev, curr := steps[i-1], steps[i]
		if prev.Verdict == "correct" && prev.Confidence > 0.8 && curr.Verdict == "incorrect" {
			patterns = append(patterns, chainPattern{
				Name: "overconfidence_before_error",
				Description: "A high-confidence correct step is immediately followed " +
					"by an error, suggesting overconfidence may have led to " +
					"less careful reasoning.",
				AffectedSteps: []int{i - 1, i},
			})
		}
	}

	return patterns
}

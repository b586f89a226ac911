package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfidenceScoreEmptyText(t *testing.T) {
	assert.Equal(t, 0.5, confidenceScore(""))
}

func TestConfidenceScoreStaysInRange(t *testing.T) {
	texts := []string{
		"short",
		"This is certainly and definitely the clearly established answer, with strong evidence behind it.",
		"It is uncertain and unclear; this might possibly be tentative and speculative at best.",
		strings.Repeat("A thorough analysis of the problem space. ", 100),
	}
	for _, text := range texts {
		score := confidenceScore(text)
		assert.GreaterOrEqual(t, score, 0.15, "text: %.40s", text)
		assert.LessOrEqual(t, score, 0.95, "text: %.40s", text)
	}
}

func TestConfidenceScoreOrdersByIndicators(t *testing.T) {
	high := "This is certainly correct. The evidence is conclusive and well-supported. " +
		"I am confident and sure: clearly and definitely established."
	low := "This is uncertain and unclear. The evidence is speculative, tentative, " +
		"ambiguous and inconclusive. Possibly wrong, perhaps questionable."

	assert.Greater(t, confidenceScore(high), confidenceScore(low))
}

func TestConfidenceScoreDeterministic(t *testing.T) {
	text := "The analysis suggests a likely outcome based on the available data."
	assert.Equal(t, confidenceScore(text), confidenceScore(text))
}

func TestConfidenceScoreNeverMidpoint(t *testing.T) {
	// The midpoint nudge keeps scores away from an uninformative 0.5.
	texts := []string{
		"probably fine",
		"suggests something",
		"based on the data it appears to hold",
	}
	for _, text := range texts {
		score := confidenceScore(text)
		assert.GreaterOrEqual(t, absDiff(score, 0.5), 0.03, "text: %s score: %v", text, score)
	}
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

func TestExtractDecisionPoints(t *testing.T) {
	text := "I will go with Option A because it scales better. " +
		"The sky looked gray this morning. " +
		"Therefore the migration should happen first."

	points := extractDecisionPoints(text)
	require.Len(t, points, 2)
	assert.Contains(t, points[0]["text"], "Option A")
	assert.Contains(t, points[1]["text"], "Therefore")
	assert.NotEmpty(t, points[0]["pattern"])
}

func TestExtractDecisionPointsNoMatches(t *testing.T) {
	assert.Empty(t, extractDecisionPoints("The sky is blue today."))
}

func TestExtractDecisionPointsOnePerSentence(t *testing.T) {
	// A sentence matching several patterns is still a single point.
	text := "I have decided to go with Option A rather than Option B, a key trade-off."
	assert.Len(t, extractDecisionPoints(text), 1)
}

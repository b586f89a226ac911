package swarm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opus-nx/swarm/pkg/models"
)

func TestClassifyComplexity(t *testing.T) {
	cases := []struct {
		query string
		want  complexity
	}{
		{"hi there", complexitySimple},
		{"What is a mutex?", complexitySimple},
		{"define idempotency", complexitySimple},
		{"Debug this flaky integration test", complexityComplex},
		{"Design a caching strategy for the session store", complexityComplex},
		{"What are the trade-offs between polling and webhooks?", complexitySimple},
		{"Compare and contrast gRPC and REST", complexityComplex},
		{"Walk me through the deployment step by step", complexityComplex},
		{"Refactor the retry logic", complexityComplex},
		{"Should we migrate the billing service this quarter?", complexityStandard},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classifyComplexity(tc.query), "query: %s", tc.query)
	}
}

func TestFallbackEffortMapping(t *testing.T) {
	assert.Equal(t, models.EffortMedium, fallbackEffort("hello"))
	assert.Equal(t, models.EffortHigh, fallbackEffort("Should we migrate?"))
	assert.Equal(t, models.EffortMax, fallbackEffort("diagnose the memory leak"))
}

func TestSimplePatternsWinOverComplex(t *testing.T) {
	// A greeting prefix short-circuits even when complex markers follow.
	assert.Equal(t, complexitySimple, classifyComplexity("hi, can you debug this?"))
}

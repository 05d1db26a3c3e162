package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/omarpiose00/NeuronVault-sub003/internal/models"
)

func newTestAnalyzer() *Analyzer {
	return New(DefaultConfig(), nil)
}

func TestEmptyPromptYieldsLowestConfidenceDefault(t *testing.T) {
	a := newTestAnalyzer()

	for _, prompt := range []string{"", "   ", "\n\t"} {
		got := a.Analyze(prompt, nil)
		assert.Equal(t, models.CategoryGeneral, got.Category)
		assert.Equal(t, models.ComplexityLow, got.Complexity)
		assert.Equal(t, 0.1, got.Confidence)
	}
}

func TestCategoryClassification(t *testing.T) {
	a := newTestAnalyzer()

	cases := []struct {
		prompt   string
		category models.TaskCategory
	}{
		{"Refactor this function and fix the bug in the api handler", models.CategoryCoding},
		{"Calculate the integral and solve for x in this equation", models.CategoryMath},
		{"Write a story with an original metaphor", models.CategoryCreative},
		{"hello, how are you today", models.CategoryConversation},
		{"what is the weather like", models.CategoryGeneral},
	}
	for _, tc := range cases {
		got := a.Analyze(tc.prompt, nil)
		assert.Equal(t, tc.category, got.Category, tc.prompt)
	}
}

func TestMultiPerspectivePhilosophyPrompt(t *testing.T) {
	a := newTestAnalyzer()

	got := a.Analyze("Compare the arguments for determinism versus free will from multiple perspectives and discuss the implications", nil)

	assert.Equal(t, models.CategoryReasoning, got.Category)
	assert.Equal(t, models.ComplexityHigh, got.Complexity)
	assert.True(t, got.MultiPerspective)
}

func TestShortFactualPromptIsLowComplexity(t *testing.T) {
	a := newTestAnalyzer()

	got := a.Analyze("capital of france", nil)
	assert.Equal(t, models.ComplexityLow, got.Complexity)
	assert.False(t, got.MultiPerspective)
	assert.False(t, got.DeepReasoning)
}

func TestUrgencySignals(t *testing.T) {
	a := newTestAnalyzer()

	urgent := a.Analyze("quickly, tl;dr the plot of hamlet", nil)
	calm := a.Analyze("describe the plot of hamlet", nil)

	assert.Greater(t, urgent.Urgency, calm.Urgency)
	assert.Equal(t, 1.0, urgent.Urgency)
}

func TestFeatureFlags(t *testing.T) {
	a := newTestAnalyzer()

	got := a.Analyze("Reason through this step by step, then summarize and brainstorm an original angle", nil)
	assert.True(t, got.DeepReasoning)
	assert.True(t, got.NeedsSynthesis)
	assert.True(t, got.NeedsCreativity)
}

func TestHistoryRaisesConfidenceUnderCap(t *testing.T) {
	a := newTestAnalyzer()
	prompt := "analyze the trade-offs of this design"

	bare := a.Analyze(prompt, nil)
	withHistory := a.Analyze(prompt, make([]string, 4))
	long := a.Analyze(prompt, make([]string, 50))

	assert.Greater(t, withHistory.Confidence, bare.Confidence)
	assert.InDelta(t, bare.Confidence*1.3, long.Confidence, 1e-9)
	assert.LessOrEqual(t, long.Confidence, 0.95)
}

package synthesis

import (
	"strings"

	"github.com/omarpiose00/NeuronVault-sub003/internal/models"
	"github.com/omarpiose00/NeuronVault-sub003/internal/textutil"
)

// scoreQuality computes the post-hoc quality breakdown of a synthesized
// answer: 0.3 source confidence, 0.3 completeness, 0.2 coherence,
// 0.2 uniqueness.
func scoreQuality(prompt, output string, sources []*models.ModelResult) models.QualityMetrics {
	m := models.QualityMetrics{
		SourceConfidence: avgConfidence(sources),
		Completeness:     completeness(prompt, output),
		Coherence:        coherence(output),
		Uniqueness:       uniqueness(output, sources),
	}
	m.Overall = 0.3*m.SourceConfidence + 0.3*m.Completeness + 0.2*m.Coherence + 0.2*m.Uniqueness
	return m
}

func avgConfidence(sources []*models.ModelResult) float64 {
	if len(sources) == 0 {
		return 0
	}
	var sum float64
	for _, s := range sources {
		sum += s.Confidence
	}
	return sum / float64(len(sources))
}

// completeness measures prompt-keyword coverage: the fraction of
// significant prompt tokens that appear in the output.
func completeness(prompt, output string) float64 {
	outTokens := textutil.TokenSet(output)
	significant := 0
	covered := 0
	for t := range textutil.TokenSet(prompt) {
		if len(t) < 4 {
			continue
		}
		significant++
		if _, ok := outTokens[t]; ok {
			covered++
		}
	}
	if significant == 0 {
		return 1.0
	}
	return float64(covered) / float64(significant)
}

// coherence applies cheap sentence/paragraph heuristics: answers with
// moderate sentence lengths and some structure score higher.
func coherence(output string) float64 {
	if strings.TrimSpace(output) == "" {
		return 0
	}

	sentences := 0
	for _, r := range output {
		if r == '.' || r == '!' || r == '?' {
			sentences++
		}
	}
	if sentences == 0 {
		sentences = 1
	}

	words := len(textutil.Tokens(output))
	avgLen := float64(words) / float64(sentences)

	score := 0.5
	// Sweet spot around 8-30 words per sentence.
	if avgLen >= 8 && avgLen <= 30 {
		score += 0.3
	} else if avgLen >= 4 && avgLen <= 45 {
		score += 0.15
	}
	if strings.Contains(output, "\n\n") {
		score += 0.2
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// uniqueness is the fraction of output tokens absent from every input.
func uniqueness(output string, sources []*models.ModelResult) float64 {
	inputTokens := make(map[string]struct{})
	for _, s := range sources {
		for t := range textutil.TokenSet(s.Content) {
			inputTokens[t] = struct{}{}
		}
	}
	return textutil.Novelty(output, inputTokens)
}

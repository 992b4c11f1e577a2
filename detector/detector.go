// Package detector scores text for the likelihood that it was machine
// generated. It is a deterministic linguistic heuristic, not a model:
// vocabulary sophistication, formal connective phrases, trigram repetition
// and casual-marker density are combined into a bounded probability.
package detector

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	LabelAIGenerated  = "AI Generated"
	LabelHumanWritten = "Human Written"
)

// Result is the detection outcome. Probability is clamped to [0.10, 0.99]
// and Confidence to [0.30, 0.95], so the scorer never claims certainty.
type Result struct {
	Probability float64 `json:"probability"`
	Label       string  `json:"label"`
	Confidence  float64 `json:"confidence"`
}

var sophisticatedWords = []string{
	"comprehensive", "analysis", "demonstrates", "significant", "patterns",
	"extensive", "insights", "implications", "furthermore", "therefore",
	"consequently", "moreover", "additionally", "substantial", "considerable",
	"methodological", "systematic", "empirical", "theoretical", "paradigm",
	"framework", "methodology", "approach", "perspective", "investigation",
}

var formalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bfurthermore\b`),
	regexp.MustCompile(`\btherefore\b`),
	regexp.MustCompile(`\bconsequently\b`),
	regexp.MustCompile(`\bmoreover\b`),
	regexp.MustCompile(`\bin conclusion\b`),
	regexp.MustCompile(`\bit is important to note\b`),
	regexp.MustCompile(`\bthis suggests\b`),
	regexp.MustCompile(`\bthe analysis shows\b`),
	regexp.MustCompile(`\bthe results indicate\b`),
	regexp.MustCompile(`\bthis demonstrates\b`),
}

var casualMarkers = []string{"lol", "omg", "btw", "tbh", "imo", "like", "really", "super", "kinda"}

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

const wordPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

type textFeatures struct {
	wordCount           int
	avgWordLength       float64
	avgSentenceLength   float64
	sophisticationRatio float64
	formalRatio         float64
	repetitionScore     float64
	exclamationRatio    float64
	questionRatio       float64
	casualRatio         float64
}

func computeFeatures(text string) textFeatures {
	words := strings.Fields(text)
	wordCount := len(words)

	sentenceCount := 0
	for _, s := range sentenceSplit.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			sentenceCount++
		}
	}

	totalWordLen := 0
	for _, word := range words {
		totalWordLen += utf8.RuneCountInString(strings.Trim(word, wordPunctuation))
	}

	lower := strings.ToLower(text)
	lowerWords := strings.Fields(lower)

	sophisticatedCount := 0
	for _, word := range lowerWords {
		for _, soph := range sophisticatedWords {
			if strings.Contains(word, soph) {
				sophisticatedCount++
				break
			}
		}
	}

	formalCount := 0
	for _, pattern := range formalPatterns {
		if pattern.MatchString(lower) {
			formalCount++
		}
	}

	// Share of trigrams that occur more than once.
	trigramCounts := make(map[string]int)
	trigramTotal := 0
	for i := 0; i+3 <= len(lowerWords); i++ {
		trigramCounts[strings.Join(lowerWords[i:i+3], " ")]++
		trigramTotal++
	}
	repeated := 0
	for _, count := range trigramCounts {
		if count > 1 {
			repeated++
		}
	}

	casualCount := 0
	for _, marker := range casualMarkers {
		if strings.Contains(lower, marker) {
			casualCount++
		}
	}

	textLen := utf8.RuneCountInString(text)

	return textFeatures{
		wordCount:           wordCount,
		avgWordLength:       float64(totalWordLen) / float64(max(wordCount, 1)),
		avgSentenceLength:   float64(wordCount) / float64(max(sentenceCount, 1)),
		sophisticationRatio: float64(sophisticatedCount) / float64(max(wordCount, 1)),
		formalRatio:         float64(formalCount) / float64(max(sentenceCount, 1)),
		repetitionScore:     float64(repeated) / float64(max(trigramTotal, 1)),
		exclamationRatio:    float64(strings.Count(text, "!")) / float64(max(textLen, 1)),
		questionRatio:       float64(strings.Count(text, "?")) / float64(max(textLen, 1)),
		casualRatio:         float64(casualCount) / float64(max(wordCount, 1)),
	}
}

// Detect scores the text. Deterministic: the same input always yields the
// same Result.
func Detect(text string) Result {
	f := computeFeatures(text)

	score := 0.0
	if f.avgWordLength > 6 {
		score += 0.2
	}
	if f.avgSentenceLength > 20 {
		score += 0.15
	}
	if f.sophisticationRatio > 0.15 {
		score += 0.25
	}
	if f.formalRatio > 0.3 {
		score += 0.2
	}
	if f.casualRatio < 0.05 {
		score += 0.1
	}
	if f.exclamationRatio < 0.01 && f.questionRatio < 0.02 {
		score += 0.1
	}
	score += min(f.repetitionScore*0.3, 0.2)

	// Short texts carry too little signal for a strong call.
	if f.wordCount < 20 {
		score *= 0.7
	}

	probability := clamp(score, 0.10, 0.99)

	label := LabelHumanWritten
	if probability > 0.5 {
		label = LabelAIGenerated
	}

	confidence := clamp(abs(probability-0.5)*2, 0.30, 0.95)

	return Result{
		Probability: probability,
		Label:       label,
		Confidence:  confidence,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

package detector

import (
	"math"
	"testing"
)

const academicText = "The comprehensive analysis demonstrates significant patterns across the empirical framework. " +
	"Furthermore, the systematic methodology provides substantial insights regarding theoretical implications. " +
	"Therefore, this demonstrates considerable methodological sophistication throughout the extensive investigation."

const casualText = "lol that movie was super fun! we really liked it, btw do you want to grab pizza? " +
	"i kinda want the one with extra cheese!"

func TestDetectDeterministic(t *testing.T) {
	first := Detect(academicText)
	second := Detect(academicText)
	if first != second {
		t.Fatalf("Detect() not deterministic: %+v vs %+v", first, second)
	}
}

func TestDetectAcademicText(t *testing.T) {
	result := Detect(academicText)
	if result.Label != LabelAIGenerated {
		t.Fatalf("Label = %q, want %q (probability %.3f)", result.Label, LabelAIGenerated, result.Probability)
	}
	if result.Probability < 0.7 {
		t.Fatalf("Probability = %.3f, want >= 0.7", result.Probability)
	}
}

func TestDetectCasualText(t *testing.T) {
	result := Detect(casualText)
	if result.Label != LabelHumanWritten {
		t.Fatalf("Label = %q, want %q (probability %.3f)", result.Label, LabelHumanWritten, result.Probability)
	}
	if result.Probability > 0.2 {
		t.Fatalf("Probability = %.3f, want <= 0.2", result.Probability)
	}
}

func TestDetectShortTextDampened(t *testing.T) {
	short := Detect("Furthermore, the comprehensive analysis demonstrates significant theoretical implications.")
	long := Detect(academicText)
	if short.Probability >= long.Probability {
		t.Fatalf("short text probability %.3f not below long text probability %.3f", short.Probability, long.Probability)
	}
}

func TestDetectBounds(t *testing.T) {
	inputs := []string{
		"",
		"ok",
		"word",
		academicText,
		casualText,
		"??!?!?!! what ?! no way !!",
	}
	for _, text := range inputs {
		result := Detect(text)
		if result.Probability < 0.10 || result.Probability > 0.99 {
			t.Fatalf("Detect(%q).Probability = %.3f, want within [0.10, 0.99]", text, result.Probability)
		}
		if result.Confidence < 0.30 || result.Confidence > 0.95 {
			t.Fatalf("Detect(%q).Confidence = %.3f, want within [0.30, 0.95]", text, result.Confidence)
		}
	}
}

func TestDetectConfidenceTracksExtremity(t *testing.T) {
	result := Detect(academicText)
	want := clamp(math.Abs(result.Probability-0.5)*2, 0.30, 0.95)
	if math.Abs(result.Confidence-want) > 1e-9 {
		t.Fatalf("Confidence = %.6f, want %.6f", result.Confidence, want)
	}
}

func TestRepetitionScoring(t *testing.T) {
	// Same word count, same sentence count, no other features tripped; the
	// repeated trigrams are the only scoring difference.
	repeated := Detect("the quick fox. the quick fox. the quick fox. the quick fox. the quick fox. the quick fox. the quick fox.")
	distinct := Detect("every single word. in this sentence. appears exactly once. across the whole. provided example text. right here now. final words land.")
	if repeated.Probability <= distinct.Probability {
		t.Fatalf("repeated trigram probability %.3f not above distinct text probability %.3f", repeated.Probability, distinct.Probability)
	}
}

package screening

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"call-screening/internal/calls"
)

// DefaultSummaryWords is the summary length the classifier is asked for.
const DefaultSummaryWords = 5

// FallbackSummary is reported when the classifier cannot be reached.
const FallbackSummary = "Unable to analyze call transcript"

const padWord = "call"

// Classifier labels a call transcript.
type Classifier interface {
	Classify(ctx context.Context, transcript string) (Result, error)
}

type Result struct {
	Verdict calls.Verdict `json:"verdict"`
	Summary string        `json:"summary"`
}

var ErrEmptyTranscript = errors.New("screening: transcript is empty")

// BuildPrompt renders the instruction sent to the model.
func BuildPrompt(transcript string, words int) string {
	if words <= 0 {
		words = DefaultSummaryWords
	}
	return fmt.Sprintf(`You are a call screening assistant. Analyze the following call transcript and decide whether it is a SCAM or SAFE call.

Call transcript:
%s

Instructions:
1. Judge the caller's intent and behavior.
2. Give a verdict: SCAM or SAFE.
3. Give a %d-word summary of the caller's intent (exactly %d words).

Respond in exactly this format:
VERDICT: [SCAM or SAFE]
SUMMARY: [exactly %d words describing the caller's intent]
`, transcript, words, words, words)
}

// ParseResponse reads "VERDICT:" and "SUMMARY:" lines. When either is
// missing, the verdict falls back to whether SCAM appears anywhere and the
// summary to the leading words of the reply. The summary is always
// normalized to exactly words words.
func ParseResponse(text string, words int) Result {
	if words <= 0 {
		words = DefaultSummaryWords
	}
	text = strings.TrimSpace(text)

	var verdict calls.Verdict
	var summary string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.Trim(strings.TrimSpace(line), "*"))
		switch {
		case hasLabel(line, "VERDICT:"):
			if strings.ToUpper(strings.Trim(valueAfter(line), " []*.")) == string(calls.VerdictScam) {
				verdict = calls.VerdictScam
			} else {
				verdict = calls.VerdictSafe
			}
		case hasLabel(line, "SUMMARY:"):
			summary = strings.Trim(valueAfter(line), " []")
		}
	}

	if verdict == "" || summary == "" {
		if strings.Contains(strings.ToUpper(text), string(calls.VerdictScam)) {
			verdict = calls.VerdictScam
		} else {
			verdict = calls.VerdictSafe
		}
		if summary == "" {
			summary = text
		}
	}
	return Result{Verdict: verdict, Summary: NormalizeSummary(summary, words)}
}

// NormalizeSummary truncates or pads s to exactly words words.
func NormalizeSummary(s string, words int) string {
	if words <= 0 {
		words = DefaultSummaryWords
	}
	fields := make([]string, 0, words)
	for _, f := range strings.Fields(s) {
		if strings.Trim(f, ".,;:!?-*\"'") == "" {
			continue
		}
		fields = append(fields, f)
		if len(fields) == words {
			break
		}
	}
	for len(fields) < words {
		fields = append(fields, padWord)
	}
	return strings.Join(fields, " ")
}

func hasLabel(line, label string) bool {
	return len(line) >= len(label) && strings.EqualFold(line[:len(label)], label)
}

func valueAfter(line string) string {
	_, v, _ := strings.Cut(line, ":")
	return strings.TrimSpace(v)
}

package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		message    string
		recs       []Recommendation
		structured bool
	}{
		{
			name:    "plain text",
			raw:     "  Sure, happy to help!  ",
			message: "Sure, happy to help!",
			recs:    []Recommendation{},
		},
		{
			name: "fenced block with message",
			raw: "Take a look at these.\n```json\n" +
				`{"message": "These two fit your budget.", "recommendations": [{"product_id": "t-100", "reasoning": "Lightweight", "match_score": 0.92}, {"product_id": "t-200", "reasoning": "Roomy", "match_score": 0.8}]}` +
				"\n```",
			message: "These two fit your budget.",
			recs: []Recommendation{
				{ProductID: "t-100", Reasoning: "Lightweight", MatchScore: 0.92},
				{ProductID: "t-200", Reasoning: "Roomy", MatchScore: 0.8},
			},
			structured: true,
		},
		{
			name:       "fenced block without message keeps surrounding text",
			raw:        "Here you go:\n```\n{\"recommendations\": [{\"product_id\": 42, \"match_score\": \"0.5\"}]}\n```\nAnything else?",
			message:    "Here you go:\n\nAnything else?",
			recs:       []Recommendation{{ProductID: "42", MatchScore: 0.5}},
			structured: true,
		},
		{
			name:       "bare trailing object",
			raw:        `I found one. {"message": "I found one.", "recommendations": [{"product_id": "x", "match_score": 3}]}`,
			message:    "I found one.",
			recs:       []Recommendation{{ProductID: "x", MatchScore: 1}},
			structured: true,
		},
		{
			name:    "malformed block degrades to plain text",
			raw:     "Great pick!\n```json\n{\"message\": \"oops\", \"recommendations\": [}\n```",
			message: "Great pick!\n```json\n{\"message\": \"oops\", \"recommendations\": [}\n```",
			recs:    []Recommendation{},
		},
		{
			name:    "unrelated object is not a structured block",
			raw:     `Use the code {"coupon": "SAVE10"} at checkout.`,
			message: `Use the code {"coupon": "SAVE10"} at checkout.`,
			recs:    []Recommendation{},
		},
		{
			name:       "items without product id are skipped",
			raw:        "```json\n{\"message\": \"ok\", \"recommendations\": [{\"reasoning\": \"no id\"}, {\"product_id\": \"a\"}]}\n```",
			message:    "ok",
			recs:       []Recommendation{{ProductID: "a"}},
			structured: true,
		},
		{
			name:       "recommendations of the wrong shape",
			raw:        "```json\n{\"message\": \"ok\", \"recommendations\": \"none\"}\n```",
			message:    "ok",
			recs:       []Recommendation{},
			structured: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseReply(tt.raw)

			assert.Equal(t, tt.message, got.Message)
			assert.Equal(t, tt.recs, got.Recommendations)
			assert.Equal(t, tt.structured, got.Structured)
		})
	}
}

func TestParseReply_StreamedFragments(t *testing.T) {
	fragments := []string{"Try ", "this.\n``", "`json\n{\"message\": \"Try this.\", ", "\"recommendations\": [{\"product_id\": \"p9\"}]}\n```"}

	var raw string
	for _, f := range fragments {
		raw += f
	}

	got := ParseReply(raw)
	require.Len(t, got.Recommendations, 1)
	assert.Equal(t, "p9", got.Recommendations[0].ProductID)
	assert.Equal(t, "Try this.", got.Message)
}

func TestFindJSONCandidates(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"none", "no json here", nil},
		{"single", `say {"a": 1} done`, []string{`{"a": 1}`}},
		{"nested", `{"a": {"b": 2}} and {"c": 3}`, []string{`{"a": {"b": 2}}`, `{"c": 3}`}},
		{"braces in strings", `{"a": "}{"}`, []string{`{"a": "}{"}`}},
		{"escaped quote", `{"a": "say \"hi\" }"}`, []string{`{"a": "say \"hi\" }"}`}},
		{"quotes in prose", `He said "wow {"a": 1}`, []string{`{"a": 1}`}},
		{"unterminated", `{"a": 1`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, findJSONCandidates(tt.input))
		})
	}
}

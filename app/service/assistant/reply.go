package assistant

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Recommendation is one product suggested by the model.
type Recommendation struct {
	ProductID  string  `json:"product_id"`
	Reasoning  string  `json:"reasoning"`
	MatchScore float64 `json:"match_score"`
}

// Reply is the parsed model output. Structured reports whether a valid
// structured block was found.
type Reply struct {
	Message         string           `json:"message"`
	Recommendations []Recommendation `json:"recommendations"`
	Structured      bool             `json:"-"`
}

var fencedBlockPattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(\\{.*?\\})\\s*```")

// ParseReply splits a raw model reply into display text and recommendations.
// It never fails: an absent or malformed block yields the whole text and no
// recommendations.
func ParseReply(raw string) Reply {
	text := strings.TrimSpace(raw)
	plain := Reply{Message: text, Recommendations: []Recommendation{}}

	block, display, ok := locateBlock(text)
	if !ok {
		return plain
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(block), &fields); err != nil {
		return plain
	}

	_, hasMessage := fields["message"]
	_, hasRecommendations := fields["recommendations"]
	if !hasMessage && !hasRecommendations {
		return plain
	}

	reply := Reply{
		Message:         display,
		Recommendations: parseRecommendations(fields["recommendations"]),
		Structured:      true,
	}

	var message string
	if err := json.Unmarshal(fields["message"], &message); err == nil && strings.TrimSpace(message) != "" {
		reply.Message = strings.TrimSpace(message)
	}
	if reply.Message == "" {
		reply.Message = text
	}

	return reply
}

// locateBlock finds a fenced JSON block, falling back to the last bare
// top-level object in the text.
func locateBlock(text string) (block, display string, ok bool) {
	if loc := fencedBlockPattern.FindStringSubmatchIndex(text); loc != nil {
		block = text[loc[2]:loc[3]]
		display = strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
		return block, display, true
	}

	candidates := findJSONCandidates(text)
	if len(candidates) == 0 {
		return "", "", false
	}

	block = candidates[len(candidates)-1]
	display = strings.TrimSpace(strings.Replace(text, block, "", 1))
	return block, display, true
}

func parseRecommendations(data json.RawMessage) []Recommendation {
	result := []Recommendation{}
	if len(data) == 0 {
		return result
	}

	var items []map[string]json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return result
	}

	for _, item := range items {
		id := lenientString(item["product_id"])
		if id == "" {
			continue
		}
		result = append(result, Recommendation{
			ProductID:  id,
			Reasoning:  lenientString(item["reasoning"]),
			MatchScore: clamp(lenientFloat(item["match_score"])),
		})
	}

	return result
}

func lenientString(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		return n.String()
	}
	return ""
}

func lenientFloat(data json.RawMessage) float64 {
	if len(data) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f
		}
	}
	return 0
}

func clamp(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return math.Max(0, math.Min(1, f))
}

// findJSONCandidates returns the top-level {...} spans of s, skipping braces
// inside string literals. Quotes outside an object are prose and ignored.
func findJSONCandidates(s string) []string {
	var (
		candidates []string
		depth      int
		start      = -1
		inString   bool
		escape     bool
	)

	for i := 0; i < len(s); i++ {
		b := s[i]

		if escape {
			escape = false
			continue
		}

		if inString {
			switch b {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			inString = depth > 0
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					candidates = append(candidates, s[start:i+1])
					start = -1
				}
			}
		}
	}

	return candidates
}

package insight

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/elliotchance/pie/v2"
)

// fragment captures the object of a phrase up to a conjunction or punctuation.
const fragment = `(.+?)(?:\s+(?:and|but|or|because|so|since|while|though)\b|[.,!?;:]|$)`

// rule is one entry of the declarative pattern bank: the first capture group
// of re becomes the insight value.
type rule struct {
	name       string
	re         *regexp.Regexp
	typ        Type
	confidence float64
	source     Source
}

// rules are evaluated in declaration order.
var rules = []rule{
	{
		name:       "explicit_preference",
		re:         regexp.MustCompile(`(?i)\bi (?:really |also |just |do )?(?:love|like|prefer|adore)\s+` + fragment),
		typ:        TypePreference,
		confidence: 0.8,
		source:     SourceExplicit,
	},
	{
		name:       "explicit_need",
		re:         regexp.MustCompile(`(?i)\b(?:needs?|i'?m looking for|i am looking for|looking for)\s+(?:to (?:buy|get|find) )?` + fragment),
		typ:        TypeNeed,
		confidence: 0.9,
		source:     SourceExplicit,
	},
	{
		name:       "worried_about",
		re:         regexp.MustCompile(`(?i)\b(?:worried|concerned|anxious) about\s+` + fragment),
		typ:        TypeConcern,
		confidence: 0.7,
		source:     SourceInferred,
	},
	{
		name:       "important_to_me",
		re:         regexp.MustCompile(`(?i)\b((?:[a-z]+ ){0,2}[a-z]+) (?:is|are) (?:really |very )?important to me\b`),
		typ:        TypeConcern,
		confidence: 0.7,
		source:     SourceInferred,
	},
	{
		name:       "enjoy_activity",
		re:         regexp.MustCompile(`(?i)\bi (?:really )?enjoy\s+([a-z]+ing)\b`),
		typ:        TypeInterest,
		confidence: 0.7,
		source:     SourceInferred,
	},
	{
		name:       "enthusiast",
		re:         regexp.MustCompile(`(?i)\b([a-z]+) (?:enthusiast|fanatic|buff|lover)\b`),
		typ:        TypeInterest,
		confidence: 0.7,
		source:     SourceInferred,
	},
	{
		name:       "into",
		re:         regexp.MustCompile(`(?i)\bi'?m (?:really )?into\s+` + fragment),
		typ:        TypeInterest,
		confidence: 0.7,
		source:     SourceInferred,
	},
}

const (
	brandConfidence     = 0.8
	heuristicConfidence = 0.7
	priceConfidence     = 0.8
	sentimentConfidence = 0.6
)

var (
	qualityPattern = regexp.MustCompile(
		`(?i)\b(?:quality|durable|durability|premium|reliable|reliability|well[- ]made|long[- ]lasting)\b`)
	priceSensitivePattern = regexp.MustCompile(
		`(?i)\b(?:cheap|cheaper|cheapest|affordable|budget|deal|discount|inexpensive|save money|too expensive|on sale)\b`)
)

const amount = `(\d+(?:,\d{3})*(?:\.\d+)?)`

var (
	priceSpanPattern  = regexp.MustCompile(`\$\s?` + amount + `\s*(?:-|–|to)\s*\$?\s?` + amount)
	priceUpperPattern = regexp.MustCompile(`(?i)\b(?:under|below|max|maximum|less than|up to|no more than)\s+\$\s?` + amount)
	priceLowerPattern = regexp.MustCompile(`(?i)\b(?:over|above|min|minimum|more than|at least)\s+\$\s?` + amount)
)

type urgencyTier struct {
	urgency Urgency
	re      *regexp.Regexp
}

// urgencyTiers are checked in order; the first tier with a hit wins.
var urgencyTiers = []urgencyTier{
	{UrgencyImmediate, phrases("asap", "as soon as possible", "today", "tonight", "right now",
		"urgent", "urgently", "emergency", "immediately", "tomorrow", "right away")},
	{UrgencyResearching, phrases("considering", "comparing", "compare", "research", "researching",
		"thinking about", "deciding", "reviews", "weighing")},
	{UrgencyBrowsing, phrases("just looking", "browsing", "curious", "just checking",
		"window shopping", "someday", "no rush")},
}

func phrases(list ...string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(pie.Map(list, regexp.QuoteMeta), "|") + `)\b`)
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "some": {}, "any": {}, "my": {}, "our": {}, "your": {},
	"to": {}, "for": {}, "of": {}, "with": {}, "really": {}, "very": {}, "just": {},
	"that": {}, "this": {}, "these": {}, "those": {}, "it": {}, "in": {}, "on": {}, "at": {},
	"me": {}, "i": {}, "is": {}, "are": {}, "be": {}, "too": {}, "also": {}, "quite": {},
}

// normalize lower-cases a fragment, drops stop-words and punctuation and
// collapses whitespace. Empty is returned for values that carry no signal.
func normalize(value string) string {
	value = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '\'' {
			return unicode.ToLower(r)
		}
		return ' '
	}, value)

	words := pie.Filter(strings.Fields(value), func(w string) bool {
		_, stop := stopWords[w]
		return !stop
	})

	result := strings.Join(words, " ")
	if len([]rune(result)) < 2 {
		return ""
	}
	if _, err := strconv.ParseFloat(strings.ReplaceAll(result, " ", ""), 64); err == nil {
		return ""
	}

	return result
}

func parseAmount(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

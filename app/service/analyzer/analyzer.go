// Package analyzer classifies a single chat message: shopping intent,
// sentiment, conversational topic, product category and entities.
package analyzer

import (
	"math"
	"sort"
	"strings"
)

type Intent string

const (
	IntentShopping Intent = "shopping"
	IntentGeneral  Intent = "general"
	IntentMixed    Intent = "mixed"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// TopicGeneral is the topic reported when no topic dictionary matches.
const TopicGeneral = "general"

// Analysis is the transient classification of one message.
type Analysis struct {
	Intent         Intent    `json:"intent"`
	Sentiment      Sentiment `json:"sentiment"`
	Topic          string    `json:"topic"`
	Category       string    `json:"category,omitempty"`
	Entities       []string  `json:"entities"`
	Confidence     float64   `json:"confidence"`
	ShouldRedirect bool      `json:"should_redirect"`
	// Checkout is set when the message asks to pay or finish an order.
	Checkout bool `json:"checkout,omitempty"`
	// Keywords are the dictionary words that produced Topic and Category.
	Keywords []string `json:"keywords,omitempty"`
}

// Snapshot is the read-only view of session counters the analyzer needs.
type Snapshot struct {
	GeneralTurns int
}

type Analyzer struct {
	profile Profile
}

func New(profile Profile) *Analyzer {
	if profile.TermsForFullScore <= 0 {
		profile.TermsForFullScore = FullProfile().TermsForFullScore
	}
	return &Analyzer{profile: profile}
}

// Analyze never fails: text without any signal yields general intent, neutral
// sentiment, general topic, no category and no entities.
func (a *Analyzer) Analyze(message string, snap Snapshot) Analysis {
	score := a.Score(message)
	intent := a.classify(score)

	result := Analysis{
		Intent:     intent,
		Sentiment:  sentimentOf(message),
		Topic:      TopicGeneral,
		Entities:   ExtractEntities(message),
		Confidence: score,
		Checkout:   checkoutPattern.MatchString(message),
	}

	for _, dict := range topicDictionaries {
		if found := dict.matches(message); len(found) > 0 {
			result.Topic = dict.name
			result.Keywords = append(result.Keywords, found...)
			break
		}
	}

	for _, dict := range categoryDictionaries {
		if found := dict.matches(message); len(found) > 0 {
			result.Category = dict.name
			result.Keywords = append(result.Keywords, found...)
			break
		}
	}

	result.ShouldRedirect = snap.GeneralTurns >= a.profile.RedirectAfterTurns && intent == IntentGeneral

	return result
}

// Score returns the shopping-intent score of message in [0,1].
func (a *Analyzer) Score(message string) float64 {
	matched := 0
	for _, t := range shoppingTerms {
		if t.re.MatchString(message) {
			matched++
		}
	}

	score := math.Min(float64(matched)/float64(a.profile.TermsForFullScore), 1)
	if matched > 0 && strings.Contains(message, "?") {
		score += a.profile.QuestionBoost
	}
	if strongIntentPattern.MatchString(message) {
		score += a.profile.PhraseBoost
	}

	return math.Min(score, 1)
}

func (a *Analyzer) classify(score float64) Intent {
	switch {
	case score > a.profile.ShoppingThreshold:
		return IntentShopping
	case score > a.profile.MixedThreshold:
		return IntentMixed
	default:
		return IntentGeneral
	}
}

func sentimentOf(message string) Sentiment {
	positive, negative := CountSentiment(message)
	switch {
	case positive > negative:
		return SentimentPositive
	case negative > positive:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// ExtractEntities returns brand, price and color tokens in order of
// appearance. Duplicates are kept.
func ExtractEntities(message string) []string {
	type span struct {
		start int
		text  string
	}

	var spans []span
	for _, re := range entityPatterns {
		for _, loc := range re.FindAllStringIndex(message, -1) {
			spans = append(spans, span{start: loc[0], text: message[loc[0]:loc[1]]})
		}
	}

	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].start < spans[j].start
	})

	entities := make([]string, 0, len(spans))
	for _, s := range spans {
		entities = append(entities, s.text)
	}

	return entities
}

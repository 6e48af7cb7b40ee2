// Package insight mines durable facts about the shopper (preferences, needs,
// concerns, interests, price range and urgency) from free-form messages.
package insight

import "time"

type Type string

const (
	TypePreference Type = "preference"
	TypeNeed       Type = "need"
	TypeConcern    Type = "concern"
	TypeInterest   Type = "interest"
)

type Source string

const (
	SourceExplicit Source = "explicit"
	SourceInferred Source = "inferred"
)

type Urgency string

const (
	UrgencyImmediate   Urgency = "immediate"
	UrgencyResearching Urgency = "researching"
	UrgencyBrowsing    Urgency = "browsing"
)

// Well-known insight values produced by the heuristics.
const (
	ValuePriceRange        = "price_range"
	ValueQuality           = "quality"
	ValuePriceSensitive    = "price_sensitive"
	ValueSentimentPositive = "sentiment_positive"
	ValueSentimentNegative = "sentiment_negative"
	ValueSentimentNeutral  = "sentiment_neutral"
)

// Price bounds used when only one side of a range is stated.
const (
	DefaultMinPrice = 0
	DefaultMaxPrice = 10000
)

type Insight struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	Value      string         `json:"value"`
	Confidence float64        `json:"confidence"`
	Timestamp  time.Time      `json:"timestamp"`
	Source     Source         `json:"source"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Result is the output of one extraction over a message history.
type Result struct {
	Insights []Insight
	// Urgency is empty when no indicator phrase was found.
	Urgency    Urgency
	PriceRange *PriceRange
}

type key struct {
	typ   Type
	value string
}

func keyOf(i Insight) key {
	return key{typ: i.Type, value: i.Value}
}

// Merge folds incoming insights into existing ones. Each (type, value) key
// appears at most once; confidence only ever rises. Neither input is modified.
func Merge(existing, incoming []Insight) []Insight {
	result := make([]Insight, len(existing), len(existing)+len(incoming))
	copy(result, existing)

	index := make(map[key]int, len(result))
	for i, item := range result {
		index[keyOf(item)] = i
	}

	for _, item := range incoming {
		k := keyOf(item)
		i, ok := index[k]
		if !ok {
			index[k] = len(result)
			result = append(result, item)
			continue
		}

		if item.Confidence > result[i].Confidence {
			result[i].Confidence = item.Confidence
		}
		if item.Metadata != nil {
			result[i].Metadata = item.Metadata
		}
	}

	return result
}

// Find returns the insight stored under (typ, value).
func Find(insights []Insight, typ Type, value string) (Insight, bool) {
	for _, item := range insights {
		if item.Type == typ && item.Value == value {
			return item, true
		}
	}
	return Insight{}, false
}

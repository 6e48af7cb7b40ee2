package insight

import (
	"time"

	"github.com/oklog/ulid/v2"

	"shopassist/app/service/analyzer"
)

type Extractor struct {
	now func() time.Time
}

type Option func(*Extractor)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		e.now = now
	}
}

func New(opts ...Option) *Extractor {
	e := &Extractor{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractMessage mines a single message with the pattern bank, brand
// mentions and the quality / price-sensitivity heuristics.
func (e *Extractor) ExtractMessage(message string) []Insight {
	now := e.now()
	var found []Insight

	for _, r := range rules {
		for _, match := range r.re.FindAllStringSubmatch(message, -1) {
			value := normalize(match[1])
			if value == "" {
				continue
			}
			found = append(found, e.newInsight(now, r.typ, value, r.confidence, r.source, nil))
		}
	}

	for _, brand := range analyzer.MentionedBrands(message) {
		found = append(found, e.newInsight(now, TypePreference, brand, brandConfidence, SourceExplicit,
			map[string]any{"kind": "brand"}))
	}

	if qualityPattern.MatchString(message) {
		found = append(found, e.newInsight(now, TypeConcern, ValueQuality, heuristicConfidence, SourceInferred, nil))
	}
	if priceSensitivePattern.MatchString(message) {
		found = append(found, e.newInsight(now, TypeConcern, ValuePriceSensitive, heuristicConfidence, SourceInferred, nil))
	}

	return Merge(nil, found)
}

// Extract mines the ordered user-message history (oldest first). Price range,
// urgency and sentiment are computed across the whole history.
func (e *Extractor) Extract(history []string) Result {
	var result Result

	for _, message := range history {
		result.Insights = Merge(result.Insights, e.ExtractMessage(message))
	}

	if pr := DetectPriceRange(history); pr != nil {
		result.PriceRange = pr
		result.Insights = Merge(result.Insights, []Insight{
			e.newInsight(e.now(), TypeConcern, ValuePriceRange, priceConfidence, SourceExplicit,
				map[string]any{"min": pr.Min, "max": pr.Max}),
		})
	}

	result.Urgency = DetectUrgency(history)
	result.Insights = Merge(result.Insights, []Insight{e.sentimentInsight(history)})

	return result
}

func (e *Extractor) sentimentInsight(history []string) Insight {
	positive, negative := 0, 0
	for _, message := range history {
		p, n := analyzer.CountSentiment(message)
		positive += p
		negative += n
	}

	value := ValueSentimentNeutral
	switch {
	case positive > 2*negative:
		value = ValueSentimentPositive
	case negative > 2*positive:
		value = ValueSentimentNegative
	}

	return e.newInsight(e.now(), TypePreference, value, sentimentConfidence, SourceInferred,
		map[string]any{"positive": positive, "negative": negative})
}

func (e *Extractor) newInsight(
	now time.Time,
	typ Type,
	value string,
	confidence float64,
	source Source,
	metadata map[string]any,
) Insight {
	return Insight{
		ID:         ulid.Make().String(),
		Type:       typ,
		Value:      value,
		Confidence: confidence,
		Timestamp:  now,
		Source:     source,
		Metadata:   metadata,
	}
}

// DetectPriceRange scans the history for an explicit span or one-sided
// bounds. Later messages override earlier ones. A missing lower bound is
// DefaultMinPrice, a missing upper bound DefaultMaxPrice.
func DetectPriceRange(history []string) *PriceRange {
	var (
		low, high       float64
		hasLow, hasHigh bool
	)

	for _, message := range history {
		if m := priceSpanPattern.FindStringSubmatch(message); m != nil {
			a, okA := parseAmount(m[1])
			b, okB := parseAmount(m[2])
			if okA && okB {
				low, high = a, b
				hasLow, hasHigh = true, true
				continue
			}
		}

		if m := priceUpperPattern.FindStringSubmatch(message); m != nil {
			if v, ok := parseAmount(m[1]); ok {
				high, hasHigh = v, true
			}
		}
		if m := priceLowerPattern.FindStringSubmatch(message); m != nil {
			if v, ok := parseAmount(m[1]); ok {
				low, hasLow = v, true
			}
		}
	}

	if !hasLow && !hasHigh {
		return nil
	}
	if !hasLow {
		low = DefaultMinPrice
	}
	if !hasHigh {
		high = DefaultMaxPrice
	}
	if low > high {
		low, high = high, low
	}

	return &PriceRange{Min: low, Max: high}
}

// DetectUrgency returns the first urgency tier with an indicator anywhere in
// the user history, or empty when nothing matches.
func DetectUrgency(history []string) Urgency {
	for _, tier := range urgencyTiers {
		for _, message := range history {
			if tier.re.MatchString(message) {
				return tier.urgency
			}
		}
	}
	return ""
}

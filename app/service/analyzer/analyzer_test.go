package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze_LaptopQuestion(t *testing.T) {
	a := New(FullProfile())

	got := a.Analyze("Do you have any laptops under $500?", Snapshot{})

	assert.Equal(t, IntentShopping, got.Intent)
	assert.Equal(t, "electronics", got.Category)
	assert.Contains(t, got.Entities, "$500")
	assert.False(t, got.ShouldRedirect)
	assert.InDelta(t, 1.0, got.Confidence, 1e-9)
}

func TestScore(t *testing.T) {
	a := New(FullProfile())

	tests := []struct {
		name    string
		message string
		want    float64
	}{
		{"no terms", "It's really cold today", 0},
		{"one term", "I want something", 1.0 / 3},
		{"two terms", "compare the price", 2.0 / 3},
		{"question boost needs a match", "is it cold?", 0},
		{"question boost", "what is the price?", 1.0/3 + 0.2},
		{"strong phrase", "Yes show me options", 2.0/3 + 0.3},
		{"capped", "where can I buy a cheap deal on sale?", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, a.Score(tt.message), 1e-9)
		})
	}
}

func TestAnalyze_IntentThresholds(t *testing.T) {
	a := New(FullProfile())

	assert.Equal(t, IntentGeneral, a.Analyze("Yeah winter came early", Snapshot{}).Intent)
	assert.Equal(t, IntentMixed, a.Analyze("I want something", Snapshot{}).Intent)
	assert.Equal(t, IntentMixed, a.Analyze("compare the price", Snapshot{}).Intent)
	assert.Equal(t, IntentShopping, a.Analyze("Yes show me options", Snapshot{}).Intent)
}

func TestAnalyze_LiteProfile(t *testing.T) {
	a := New(LiteProfile())

	// two terms are a full score, but boosts are off
	assert.Equal(t, IntentShopping, a.Analyze("compare the price", Snapshot{}).Intent)
	assert.Equal(t, IntentGeneral, a.Analyze("do you?", Snapshot{}).Intent)
	assert.InDelta(t, 0.5, a.Score("what is the price?"), 1e-9)
}

func TestAnalyze_Sentiment(t *testing.T) {
	a := New(FullProfile())

	assert.Equal(t, SentimentPositive, a.Analyze("This is great, I love it", Snapshot{}).Sentiment)
	assert.Equal(t, SentimentNegative, a.Analyze("my heater is broken, awful", Snapshot{}).Sentiment)
	assert.Equal(t, SentimentNeutral, a.Analyze("good but bad", Snapshot{}).Sentiment)
	assert.Equal(t, SentimentNeutral, a.Analyze("", Snapshot{}).Sentiment)
}

func TestAnalyze_TopicAndCategory(t *testing.T) {
	a := New(FullProfile())

	got := a.Analyze("I'm freezing, heating's broken", Snapshot{})
	assert.Equal(t, "weather", got.Topic)
	assert.Empty(t, got.Category)
	assert.Contains(t, got.Keywords, "freezing")

	got = a.Analyze("Planning a trip, need a new suitcase", Snapshot{})
	assert.Equal(t, "travel", got.Topic)
	assert.Equal(t, "travel", got.Category)

	got = a.Analyze("hello there", Snapshot{})
	assert.Equal(t, TopicGeneral, got.Topic)
	assert.Empty(t, got.Category)
	assert.Empty(t, got.Entities)
}

func TestAnalyze_FirstDictionaryWins(t *testing.T) {
	a := New(FullProfile())

	// weather is listed before food
	got := a.Analyze("hot pizza for dinner", Snapshot{})
	assert.Equal(t, "weather", got.Topic)
}

func TestExtractEntities_OrderAndDuplicates(t *testing.T) {
	got := ExtractEntities("Apple in black for $900, or the black Samsung under $1,200.50")

	require.Len(t, got, 6)
	assert.Equal(t, []string{"Apple", "black", "$900", "black", "Samsung", "$1,200.50"}, got)
}

func TestAnalyze_ShouldRedirect(t *testing.T) {
	a := New(FullProfile())

	assert.False(t, a.Analyze("nice weather", Snapshot{GeneralTurns: 2}).ShouldRedirect)
	assert.True(t, a.Analyze("nice weather", Snapshot{GeneralTurns: 3}).ShouldRedirect)
	assert.False(t, a.Analyze("I want something", Snapshot{GeneralTurns: 5}).ShouldRedirect)
}

func TestAnalyze_Checkout(t *testing.T) {
	a := New(FullProfile())

	assert.True(t, a.Analyze("ok add it to my cart", Snapshot{}).Checkout)
	assert.True(t, a.Analyze("I'm ready to checkout", Snapshot{}).Checkout)
	assert.False(t, a.Analyze("show me jackets", Snapshot{}).Checkout)
}

func TestProfileByName(t *testing.T) {
	assert.Equal(t, ProfileLite, ProfileByName("lite").Name)
	assert.Equal(t, ProfileFull, ProfileByName("unknown").Name)
}

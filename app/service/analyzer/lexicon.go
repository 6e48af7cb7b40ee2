package analyzer

import (
	"regexp"
	"strings"

	"github.com/elliotchance/pie/v2"
)

// dictionary is a named keyword family. Keywords match on word boundaries,
// case-insensitively, with an optional plural suffix.
type dictionary struct {
	name string
	re   *regexp.Regexp
}

func newDictionary(name string, words ...string) dictionary {
	return dictionary{name: name, re: wordsPattern(words, `(?:s|es)?`)}
}

func wordsPattern(words []string, suffix string) *regexp.Regexp {
	quoted := pie.Map(words, regexp.QuoteMeta)
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)` + suffix + `\b`)
}

// matches returns the distinct lower-cased keywords found in text.
func (d dictionary) matches(text string) []string {
	var result []string
	for _, word := range d.re.FindAllString(text, -1) {
		word = strings.ToLower(word)
		if !pie.Contains(result, word) {
			result = append(result, word)
		}
	}
	return result
}

type term struct {
	word string
	re   *regexp.Regexp
}

func newTerms(words ...string) []term {
	result := make([]term, 0, len(words))
	for _, w := range words {
		result = append(result, term{
			word: w,
			re:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(w) + `\b`),
		})
	}
	return result
}

var shoppingTerms = newTerms(
	"buy", "purchase", "need", "looking for", "price", "budget", "recommend",
	"recommendation", "compare", "shop", "shopping", "deal", "discount", "cost",
	"order", "want", "options", "show me", "afford", "cheap", "sale", "under",
	"do you have", "best", "suggest",
)

var strongIntentPattern = regexp.MustCompile(
	`(?i)\b(?:where can i (?:buy|get|find)|do you (?:have|sell|carry)|i'?m looking for|i am looking for|show me|can you recommend|i want to buy)\b`,
)

var checkoutPattern = regexp.MustCompile(
	`(?i)\b(?:check ?out|add (?:it |this |that |them )?to (?:my )?cart|place (?:my |the |an )?order|pay(?:ment)?|buy it now|ready to buy)\b`,
)

var (
	positiveWords = wordsPattern([]string{
		"good", "great", "love", "like", "awesome", "excellent", "amazing", "happy",
		"nice", "perfect", "wonderful", "fantastic", "thanks", "thank", "glad", "enjoy",
	}, "")
	negativeWords = wordsPattern([]string{
		"bad", "terrible", "hate", "awful", "broken", "worst", "disappointed", "poor",
		"sad", "angry", "annoying", "problem", "horrible", "useless", "frustrated",
	}, "")
)

// topicDictionaries are evaluated in order; the first hit wins.
var topicDictionaries = []dictionary{
	newDictionary("weather",
		"weather", "cold", "hot", "rain", "raining", "snow", "snowing", "winter", "summer",
		"sunny", "freezing", "temperature", "storm", "humid", "forecast"),
	newDictionary("travel",
		"travel", "trip", "vacation", "flight", "hotel", "holiday", "beach", "airport", "journey"),
	newDictionary("health",
		"health", "sick", "doctor", "exercise", "workout", "diet", "sleep", "tired", "headache", "ill"),
	newDictionary("technology",
		"technology", "tech", "computer", "software", "app", "internet", "gadget", "coding", "ai"),
	newDictionary("food",
		"food", "eat", "eating", "dinner", "lunch", "breakfast", "cook", "cooking", "recipe",
		"restaurant", "hungry", "pizza"),
	newDictionary("entertainment",
		"movie", "film", "music", "game", "gaming", "series", "netflix", "concert", "book", "song"),
	newDictionary("work",
		"work", "job", "office", "boss", "meeting", "career", "deadline", "colleague"),
}

// categoryDictionaries are evaluated in order; the first hit wins.
var categoryDictionaries = []dictionary{
	newDictionary("electronics",
		"laptop", "computer", "phone", "smartphone", "tablet", "tv", "television", "headphone",
		"earbud", "camera", "speaker", "monitor", "console", "smartwatch", "charger", "electronics"),
	newDictionary("clothing",
		"shirt", "dress", "jacket", "coat", "pant", "jeans", "shoe", "sneaker", "boot", "sweater",
		"hoodie", "clothing", "clothes", "outfit", "hat", "sock"),
	newDictionary("home",
		"furniture", "sofa", "couch", "chair", "table", "lamp", "bed", "mattress", "kitchen",
		"blender", "heater", "blanket", "decor", "vacuum"),
	newDictionary("beauty",
		"makeup", "lipstick", "skincare", "moisturizer", "serum", "shampoo", "perfume", "cosmetic",
		"lotion", "mascara"),
	newDictionary("sports",
		"hiking", "tent", "bike", "bicycle", "running", "yoga", "gym", "fitness", "ball", "racket",
		"camping", "treadmill", "dumbbell"),
	newDictionary("travel",
		"luggage", "suitcase", "backpack", "carry-on", "travel bag", "passport holder"),
}

// Brands is the fixed brand list recognised as entities.
var Brands = []string{
	"apple", "samsung", "sony", "nike", "adidas", "dell", "hp", "lenovo", "lg", "bose",
	"canon", "nikon", "microsoft", "google", "asus", "acer", "puma", "zara", "ikea", "dyson",
}

var (
	brandPattern = wordsPattern(Brands, "")
	colorPattern = wordsPattern([]string{
		"red", "blue", "green", "black", "white", "yellow", "purple", "pink", "orange",
		"gray", "grey", "brown", "silver", "gold", "navy", "beige",
	}, "")
	pricePattern = regexp.MustCompile(`\$\d+(?:,\d{3})*(?:\.\d+)?`)
)

// CountSentiment returns the number of positive and negative word occurrences.
func CountSentiment(text string) (positive, negative int) {
	return len(positiveWords.FindAllStringIndex(text, -1)), len(negativeWords.FindAllStringIndex(text, -1))
}

// MentionedBrands returns the lower-cased brand names in order of appearance.
func MentionedBrands(text string) []string {
	return pie.Map(brandPattern.FindAllString(text, -1), strings.ToLower)
}

var entityPatterns = []*regexp.Regexp{brandPattern, pricePattern, colorPattern}

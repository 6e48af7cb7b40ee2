package dialogue

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/elliotchance/pie/v2"

	"shopassist/app/service/insight"
)

const maxSummaryValues = 5

// EngagementScore is a derived metric in [0,1] recomputed from the session:
// conversation length, the share of shopping topics in the topic stack and
// the number of insights learned.
func (s Session) EngagementScore() float64 {
	turns := math.Min(float64(s.MessageCount)/10, 1) * 0.4

	shopping := 0.0
	if len(s.Topics) > 0 {
		count := len(pie.Filter(s.Topics, func(t Topic) bool { return t.Type == TopicShopping }))
		shopping = float64(count) / float64(len(s.Topics)) * 0.3
	}

	insights := math.Min(float64(len(s.Insights))/6, 1) * 0.3

	return math.Round((turns+shopping+insights)*1000) / 1000
}

// Summary renders the session for the language model and for operators.
func (s Session) Summary() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Conversation state: %s\n", s.State)

	if s.ShoppingIntent.Identified {
		category := s.ShoppingIntent.Category
		if category == "" {
			category = "unspecified category"
		}
		fmt.Fprintf(&b, "Shopping intent: %s (urgency: %s, confidence %.2f)\n",
			category, s.ShoppingIntent.Urgency, s.ShoppingIntent.Confidence)
	} else {
		b.WriteString("Shopping intent: not identified yet\n")
	}

	if s.LastShoppingTopic != "" {
		fmt.Fprintf(&b, "Last shopping topic: %s\n", s.LastShoppingTopic)
	}

	if pr, ok := insight.Find(s.Insights, insight.TypeConcern, insight.ValuePriceRange); ok {
		fmt.Fprintf(&b, "Price range: $%v - $%v\n", pr.Metadata["min"], pr.Metadata["max"])
	}

	for _, typ := range []insight.Type{insight.TypePreference, insight.TypeNeed, insight.TypeConcern, insight.TypeInterest} {
		values := topValues(s.Insights, typ)
		if len(values) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%ss: %s\n", strings.ToUpper(string(typ[:1]))+string(typ[1:]), strings.Join(values, ", "))
	}

	return strings.TrimRight(b.String(), "\n")
}

func topValues(items []insight.Insight, typ insight.Type) []string {
	matching := pie.Filter(items, func(i insight.Insight) bool {
		return i.Type == typ && i.Value != insight.ValuePriceRange
	})
	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].Confidence > matching[j].Confidence
	})
	if len(matching) > maxSummaryValues {
		matching = matching[:maxSummaryValues]
	}
	return pie.Map(matching, func(i insight.Insight) string { return i.Value })
}

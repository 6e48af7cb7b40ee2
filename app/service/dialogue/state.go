// Package dialogue holds the conversation state machine, the immutable
// session snapshot it operates on and the redirect policy that steers idle
// chit-chat back to shopping.
package dialogue

import "shopassist/app/service/analyzer"

type State string

const (
	StateGreeting           State = "GREETING"
	StateGeneralChat        State = "GENERAL_CHAT"
	StateProductDiscovery   State = "PRODUCT_DISCOVERY"
	StateRecommendation     State = "RECOMMENDATION"
	StateComparison         State = "COMPARISON"
	StateCheckoutAssistance State = "CHECKOUT_ASSISTANCE"
)

// NextState is the pure transition function. redirect reports whether the
// redirect policy decided to steer this turn.
func NextState(current State, a analyzer.Analysis, redirect bool) State {
	shopping := a.Intent == analyzer.IntentShopping
	mixed := a.Intent == analyzer.IntentMixed

	switch current {
	case StateGreeting:
		if a.Intent == analyzer.IntentGeneral {
			return StateGeneralChat
		}
		return StateProductDiscovery

	case StateGeneralChat:
		if shopping || redirect {
			return StateProductDiscovery
		}
		return StateGeneralChat

	case StateProductDiscovery:
		if shopping && len(a.Entities) >= 2 {
			return StateComparison
		}
		if shopping || mixed {
			return StateRecommendation
		}
		return StateProductDiscovery

	case StateRecommendation, StateComparison:
		if a.Checkout && (shopping || mixed) {
			return StateCheckoutAssistance
		}
	}

	switch {
	case shopping && a.Category != "":
		return StateProductDiscovery
	case shopping:
		return StateRecommendation
	default:
		return current
	}
}

// Guidance is the per-state hint handed to the language model.
func (s State) Guidance() string {
	switch s {
	case StateGreeting:
		return "Welcome the shopper warmly and ask what brings them here today."
	case StateGeneralChat:
		return "Keep the small talk friendly and brief; look for a natural opening to help with shopping."
	case StateProductDiscovery:
		return "Ask focused questions about needs, budget and preferences to narrow down suitable products."
	case StateRecommendation:
		return "Recommend the best matching products from the catalog and explain briefly why each fits."
	case StateComparison:
		return "Compare the products or brands the shopper mentioned side by side and point out key trade-offs."
	case StateCheckoutAssistance:
		return "Help the shopper finish the purchase: confirm the choice, answer last questions, guide them to checkout."
	default:
		return ""
	}
}

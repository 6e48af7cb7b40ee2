package analyzer

const (
	ProfileFull = "full"
	ProfileLite = "lite"
)

// Profile holds the tunable constants of intent scoring. The thresholds are
// empirical, so they live in configuration rather than in code.
type Profile struct {
	Name string

	// ShoppingThreshold: score strictly above it classifies as shopping.
	ShoppingThreshold float64
	// MixedThreshold: score strictly above it (and not shopping) classifies as mixed.
	MixedThreshold float64
	// TermsForFullScore is the number of distinct shopping terms worth a score of 1.
	TermsForFullScore int
	QuestionBoost     float64
	PhraseBoost       float64

	// RedirectAfterTurns is the general-chat streak after which a general
	// message is flagged as redirect-eligible.
	RedirectAfterTurns int
}

func FullProfile() Profile {
	return Profile{
		Name:               ProfileFull,
		ShoppingThreshold:  0.7,
		MixedThreshold:     0.3,
		TermsForFullScore:  3,
		QuestionBoost:      0.2,
		PhraseBoost:        0.3,
		RedirectAfterTurns: 3,
	}
}

// LiteProfile is the lightweight scoring used by embeddings that want cheap
// classification: no boosts and a full score after two terms.
func LiteProfile() Profile {
	return Profile{
		Name:               ProfileLite,
		ShoppingThreshold:  0.7,
		MixedThreshold:     0.3,
		TermsForFullScore:  2,
		RedirectAfterTurns: 3,
	}
}

// ProfileByName returns the named profile, falling back to the full one.
func ProfileByName(name string) Profile {
	if name == ProfileLite {
		return LiteProfile()
	}
	return FullProfile()
}

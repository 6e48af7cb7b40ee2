package dialogue

import (
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"time"
)

type PolicyConfig struct {
	// GeneralTurns is the general-chat streak that makes a redirect eligible.
	GeneralTurns int
	// MaxAttempts stops redirects for the rest of the session once reached.
	MaxAttempts int
	// ShoppingTopicDecay makes a redirect eligible once the last shopping
	// topic is older than this. Zero disables the rule.
	ShoppingTopicDecay time.Duration
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		GeneralTurns:       3,
		MaxAttempts:        2,
		ShoppingTopicDecay: 60 * time.Second,
	}
}

var genericTemplates = []string{
	"By the way, is there anything I can help you find today?",
	"Speaking of which, are you shopping for anything in particular?",
	"If you're in the market for {category}, I'd be happy to show you a few options.",
	"Whenever you're ready, I can help you pick out {category}.",
}

var topicTemplates = map[string][]string{
	"weather": {
		"With weather like this, the right gear makes a difference. Want me to show you some {category}?",
		"All this talk about the {topic} reminds me we have some great seasonal picks. Shall I show you?",
	},
	"travel": {
		"Planning some {topic}? I can help you find travel essentials for the trip.",
		"A good trip starts with the right gear. Want some suggestions for {category}?",
	},
	"health": {
		"If you're focusing on {topic}, I can suggest a few wellness products that might help.",
	},
	"technology": {
		"Speaking of {topic}, want to see the latest gadgets we carry?",
	},
	"food": {
		"All this food talk! Want me to show you some kitchen essentials?",
	},
	"entertainment": {
		"Need something for your next movie or game night? I can recommend a few things.",
	},
}

var placeholderPattern = regexp.MustCompile(`\{[a-z_]+\}`)

// Policy decides when to steer a conversation back to shopping and phrases
// the nudge. It is safe for concurrent use.
type Policy struct {
	cfg PolicyConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPolicy builds a policy; rng makes template selection deterministic in
// tests. A nil rng is seeded randomly.
func NewPolicy(cfg PolicyConfig, rng *rand.Rand) *Policy {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Policy{cfg: cfg, rng: rng}
}

// ShouldRedirect applies the policy rules in order: attempt exhaustion
// excludes, a long general-chat streak or a stale shopping topic qualifies.
func (p *Policy) ShouldRedirect(s Session, now time.Time) bool {
	if s.RedirectAttempts >= p.cfg.MaxAttempts {
		return false
	}
	if s.GeneralTurns >= p.cfg.GeneralTurns {
		return true
	}
	if p.cfg.ShoppingTopicDecay > 0 && !s.LastShoppingAt.IsZero() {
		return now.Sub(s.LastShoppingAt) > p.cfg.ShoppingTopicDecay
	}
	return false
}

// GeneratePrompt picks a redirect phrase for topic (may be nil) and returns
// it together with the session whose attempt counter went up by one.
func (p *Policy) GeneratePrompt(s Session, topic *Topic) (string, Session) {
	candidates := genericTemplates
	subject := ""
	if topic != nil {
		subject = topic.Subject
		if specific, ok := topicTemplates[topic.Subject]; ok {
			candidates = append(append([]string(nil), genericTemplates...), specific...)
		}
	}

	p.mu.Lock()
	template := candidates[p.rng.IntN(len(candidates))]
	p.mu.Unlock()

	category := s.ShoppingIntent.Category
	if category == "" {
		category = s.LastShoppingTopic
	}

	prompt := fillPlaceholders(template, map[string]string{
		"topic":    subject,
		"category": category,
	})

	next := s
	next.RedirectAttempts++

	return prompt, next
}

// fillPlaceholders substitutes {key} values; anything left unfilled becomes
// "that".
func fillPlaceholders(template string, values map[string]string) string {
	result := template
	for key, value := range values {
		if value == "" {
			continue
		}
		result = strings.ReplaceAll(result, "{"+key+"}", value)
	}
	return placeholderPattern.ReplaceAllString(result, "that")
}

package dialogue

import (
	"slices"
	"time"

	"github.com/oklog/ulid/v2"

	"shopassist/app/service/analyzer"
	"shopassist/app/service/insight"
)

// MaxTopics bounds the topic stack; the oldest topic is evicted first.
const MaxTopics = 10

type TopicType string

const (
	TopicShopping TopicType = "shopping"
	TopicGeneral  TopicType = "general"
)

// Topic is immutable once created.
type Topic struct {
	ID           string    `json:"id"`
	Type         TopicType `json:"type"`
	Subject      string    `json:"subject"`
	Timestamp    time.Time `json:"timestamp"`
	MessageCount int       `json:"message_count"`
	Keywords     []string  `json:"keywords,omitempty"`
}

type ShoppingIntent struct {
	Identified bool            `json:"identified"`
	Category   string          `json:"category,omitempty"`
	Urgency    insight.Urgency `json:"urgency"`
	Confidence float64         `json:"confidence"`
}

// Session is a snapshot of one conversation. Methods never modify the
// receiver; they return the next snapshot.
type Session struct {
	ID                string            `json:"session_id"`
	State             State             `json:"current_state"`
	Topics            []Topic           `json:"topic_stack"`
	ShoppingIntent    ShoppingIntent    `json:"shopping_intent"`
	RedirectAttempts  int               `json:"redirect_attempts"`
	GeneralTurns      int               `json:"general_turns"`
	Insights          []insight.Insight `json:"insights"`
	LastShoppingTopic string            `json:"last_shopping_topic,omitempty"`
	LastShoppingAt    time.Time         `json:"last_shopping_at"`
	MessageCount      int               `json:"message_count"`
	StartTime         time.Time         `json:"start_time"`
	LastActivity      time.Time         `json:"last_activity"`
}

func NewSession(id string, now time.Time) Session {
	return Session{
		ID:    id,
		State: StateGreeting,
		ShoppingIntent: ShoppingIntent{
			Urgency: insight.UrgencyBrowsing,
		},
		StartTime:    now,
		LastActivity: now,
	}
}

// CurrentTopic returns the most recent topic, if any.
func (s Session) CurrentTopic() *Topic {
	if len(s.Topics) == 0 {
		return nil
	}
	t := s.Topics[len(s.Topics)-1]
	return &t
}

// UpdateContext commits a transition: it sets the state and activity time,
// counts the general-chat streak and pushes the topic, if any.
func (s Session) UpdateContext(state State, topic *Topic, now time.Time) Session {
	next := s
	next.State = state
	next.LastActivity = now
	next.MessageCount++

	if state == StateGeneralChat {
		next.GeneralTurns++
	} else {
		next.GeneralTurns = 0
	}

	if topic != nil {
		topics := slices.Clone(s.Topics)
		topics = append(topics, *topic)
		if len(topics) > MaxTopics {
			topics = topics[len(topics)-MaxTopics:]
		}
		next.Topics = topics

		if topic.Type == TopicShopping {
			next.LastShoppingTopic = topic.Subject
			next.LastShoppingAt = topic.Timestamp
		}
	}

	return next
}

// MergeInsights folds extracted insights into the session.
func (s Session) MergeInsights(incoming []insight.Insight) Session {
	next := s
	next.Insights = insight.Merge(s.Insights, incoming)
	return next
}

// WithShoppingIntent refreshes the shopping intent from the turn's analysis
// and the urgency detected over the history.
func (s Session) WithShoppingIntent(a analyzer.Analysis, urgency insight.Urgency) Session {
	next := s
	intent := s.ShoppingIntent

	if a.Intent != analyzer.IntentGeneral {
		intent.Identified = true
		intent.Confidence = a.Confidence
	}
	if a.Category != "" {
		intent.Category = a.Category
	}
	if urgency != "" {
		intent.Urgency = urgency
	}

	next.ShoppingIntent = intent
	return next
}

// TopicFrom builds the topic for an analyzed message, or nil when the
// message has neither a specific subject nor a category.
func TopicFrom(a analyzer.Analysis, messageCount int, now time.Time) *Topic {
	if a.Topic == analyzer.TopicGeneral && a.Category == "" {
		return nil
	}

	typ := TopicGeneral
	if a.Category != "" || a.Intent == analyzer.IntentShopping {
		typ = TopicShopping
	}

	subject := a.Topic
	if subject == analyzer.TopicGeneral || (typ == TopicShopping && a.Category != "") {
		subject = a.Category
	}

	return &Topic{
		ID:           ulid.Make().String(),
		Type:         typ,
		Subject:      subject,
		Timestamp:    now,
		MessageCount: messageCount,
		Keywords:     slices.Clone(a.Keywords),
	}
}

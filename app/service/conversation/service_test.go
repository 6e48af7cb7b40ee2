package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopassist/app/client/catalog"
	"shopassist/app/client/cdp"
	"shopassist/app/service/assistant"
	"shopassist/app/service/dialogue"
)

func TestProcessTurn_SmallTalkThenShopping(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	turns := []struct {
		message string
		state   dialogue.State
	}{
		{"It's really cold today", dialogue.StateGeneralChat},
		{"Yeah winter came early", dialogue.StateGeneralChat},
		{"I'm freezing, heating's broken", dialogue.StateGeneralChat},
		{"Yes show me options", dialogue.StateProductDiscovery},
	}

	id := "s-1"
	for i, turn := range turns {
		res, err := f.svc.ProcessTurn(ctx, TurnRequest{SessionID: id, Message: turn.message})
		require.NoError(t, err, turn.message)

		assert.Equal(t, turn.state, res.State, "turn %d", i+1)
		assert.False(t, res.Degraded)
		assert.False(t, res.Redirected)
	}

	s, ok := f.svc.Snapshot(id)
	require.True(t, ok)

	assert.Equal(t, dialogue.StateProductDiscovery, s.State)
	require.Len(t, s.Topics, 3)
	for _, topic := range s.Topics {
		assert.Equal(t, "weather", topic.Subject)
		assert.Equal(t, dialogue.TopicGeneral, topic.Type)
	}
	assert.Equal(t, 0, s.GeneralTurns)
	assert.Equal(t, 4, s.MessageCount)
	assert.Len(t, f.publisher.events, 4)
}

func TestProcessTurn_RedirectAfterGeneralStreak(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for _, message := range []string{"It's really cold today", "Yeah winter came early", "The snow is pretty"} {
		res, err := f.svc.ProcessTurn(ctx, TurnRequest{SessionID: "s-1", Message: message})
		require.NoError(t, err)
		require.False(t, res.Redirected)
		assert.Empty(t, f.model.lastRequest().RedirectInstruction)
	}

	res, err := f.svc.ProcessTurn(ctx, TurnRequest{SessionID: "s-1", Message: "Rain tomorrow too"})
	require.NoError(t, err)

	assert.True(t, res.Redirected)
	assert.Equal(t, dialogue.StateProductDiscovery, res.State)

	req := f.model.lastRequest()
	assert.NotEmpty(t, req.RedirectInstruction)
	assert.NotContains(t, req.RedirectInstruction, "{")
	assert.Contains(t, req.SystemInstructions, req.RedirectInstruction)

	s, _ := f.svc.Snapshot("s-1")
	assert.Equal(t, 1, s.RedirectAttempts)
	assert.Equal(t, 0, s.GeneralTurns)
}

func TestProcessTurn_RedirectAfterStaleShoppingTopic(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.ProcessTurn(ctx, TurnRequest{SessionID: "s-1", Message: "It's really cold today"})
	require.NoError(t, err)
	require.Equal(t, dialogue.StateGeneralChat, res.State)

	f.clock.Advance(10 * time.Second)
	res, err = f.svc.ProcessTurn(ctx, TurnRequest{SessionID: "s-1", Message: "My old jacket is so warm"})
	require.NoError(t, err)
	require.False(t, res.Redirected)

	s, _ := f.svc.Snapshot("s-1")
	require.Equal(t, dialogue.StateGeneralChat, s.State)
	require.Equal(t, 2, s.GeneralTurns)
	require.Equal(t, t0.Add(10*time.Second), s.LastShoppingAt)

	f.clock.Advance(61 * time.Second)
	res, err = f.svc.ProcessTurn(ctx, TurnRequest{SessionID: "s-1", Message: "Rain tomorrow too"})
	require.NoError(t, err)

	assert.True(t, res.Redirected)
	assert.Equal(t, dialogue.StateProductDiscovery, res.State)
	assert.NotEmpty(t, f.model.lastRequest().RedirectInstruction)

	s, _ = f.svc.Snapshot("s-1")
	assert.Equal(t, 1, s.RedirectAttempts)
}

func TestProcessTurn_RecommendationsAndContext(t *testing.T) {
	model := &fakeModel{reply: "Here is a great option.\n```json\n" +
		`{"message": "The Aspire 3 fits your budget.", "recommendations": [{"product_id": "e-1", "reasoning": "under $500", "match_score": 0.9}]}` +
		"\n```"}
	f := newFixture(t, model)
	f.catalog.products = []catalog.Product{{ID: "e-1", Name: "Aspire 3", Category: "electronics", Brand: "Acer", Price: 449, InStock: true}}
	f.catalog.profiles = map[string]catalog.CustomerProfile{"c-1": {ID: "c-1", Name: "Alice"}}
	f.svc.enricher = fakeEnricher{enrichment: cdp.Enrichment{
		Available: true,
		Fields:    map[string]cdp.Field{"tier": {Value: "gold", DisplayName: "Loyalty tier"}},
	}}

	res, err := f.svc.ProcessTurn(context.Background(), TurnRequest{
		CustomerID: "c-1",
		Message:    "Do you have any laptops under $500?",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, "The Aspire 3 fits your budget.", res.Message)
	assert.Equal(t, []assistant.Recommendation{{ProductID: "e-1", Reasoning: "under $500", MatchScore: 0.9}}, res.Recommendations)
	assert.Equal(t, dialogue.StateProductDiscovery, res.State)
	assert.Greater(t, res.EngagementScore, 0.0)

	assert.Equal(t, []string{"electronics"}, f.catalog.categories)

	req := f.model.lastRequest()
	assert.Contains(t, req.UserPayload, "e-1 | Aspire 3 | Acer | $449.00")
	assert.Contains(t, req.UserPayload, "Name: Alice")
	assert.Contains(t, req.UserPayload, "Loyalty tier: gold")
	assert.Contains(t, req.UserPayload, "Do you have any laptops under $500?")
	assert.Equal(t, dialogue.StateProductDiscovery.Guidance(), req.StateHint)

	require.Len(t, f.publisher.events, 1)
	event := f.publisher.events[0]
	assert.Equal(t, res.SessionID, event.SessionID)
	assert.Equal(t, "PRODUCT_DISCOVERY", event.State)
	assert.Equal(t, "GREETING", event.PreviousState)
	assert.Equal(t, "shopping", event.Intent)
	assert.Equal(t, "electronics", event.Category)
	assert.Equal(t, []string{"e-1"}, event.Recommendations)

	s, _ := f.svc.Snapshot(res.SessionID)
	assert.True(t, s.ShoppingIntent.Identified)
	assert.Equal(t, "electronics", s.ShoppingIntent.Category)
	assert.Equal(t, "electronics", s.LastShoppingTopic)
}

func TestProcessTurn_ModelFailureKeepsState(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.ProcessTurn(ctx, TurnRequest{SessionID: "s-1", Message: "Do you have any laptops under $500?"})
	require.NoError(t, err)
	before, _ := f.svc.Snapshot("s-1")

	for _, failure := range []error{
		errors.New("model unavailable: status code: 503"),
		assistant.ErrPermanent,
	} {
		f.model.setErr(failure)

		res, err := f.svc.ProcessTurn(ctx, TurnRequest{SessionID: "s-1", Message: "I love Apple and I need a black one, which is the best?"})
		require.NoError(t, err)

		assert.True(t, res.Degraded)
		assert.Equal(t, apologyMessage, res.Message)
		assert.Empty(t, res.Recommendations)
		assert.Equal(t, before.State, res.State)

		after, _ := f.svc.Snapshot("s-1")
		assert.Equal(t, before, after)
	}

	assert.Len(t, f.publisher.events, 1)
}

func TestProcessTurn_CancelledKeepsState(t *testing.T) {
	model := &fakeModel{reply: "ok", started: make(chan struct{}, 1), block: make(chan struct{})}
	f := newFixture(t, model)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-model.started
		cancel()
	}()

	_, err := f.svc.ProcessTurn(ctx, TurnRequest{SessionID: "s-1", Message: "I'm looking for a tent"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	s, ok := f.svc.Snapshot("s-1")
	require.True(t, ok)
	assert.Equal(t, dialogue.StateGreeting, s.State)
	assert.Empty(t, s.Insights)
	assert.Empty(t, s.Topics)
	assert.Equal(t, 0, s.MessageCount)
	assert.Empty(t, f.publisher.events)

	// the session is free again
	close(model.block)
	_, err = f.svc.ProcessTurn(context.Background(), TurnRequest{SessionID: "s-1", Message: "hello"})
	<-model.started
	require.NoError(t, err)
}

func TestProcessTurn_BusySessionRejected(t *testing.T) {
	model := &fakeModel{reply: "ok", started: make(chan struct{}, 2), block: make(chan struct{})}
	f := newFixture(t, model)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.ProcessTurn(context.Background(), TurnRequest{SessionID: "s-1", Message: "I need a tent"})
		done <- err
	}()
	<-model.started

	_, err := f.svc.ProcessTurn(context.Background(), TurnRequest{SessionID: "s-1", Message: "hello?"})
	assert.ErrorIs(t, err, ErrTurnInFlight)

	// other sessions are unaffected
	go func() {
		<-model.started
	}()
	close(model.block)
	_, err = f.svc.ProcessTurn(context.Background(), TurnRequest{SessionID: "s-2", Message: "hello"})
	require.NoError(t, err)

	require.NoError(t, <-done)

	s, _ := f.svc.Snapshot("s-1")
	assert.Equal(t, 1, s.MessageCount)
}

func TestProcessTurn_EmptyMessage(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.ProcessTurn(context.Background(), TurnRequest{SessionID: "s-1", Message: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, ok := f.svc.Snapshot("s-1")
	assert.False(t, ok)
}

func TestProcessTurn_PriorTurnsSeedHistory(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.ProcessTurn(context.Background(), TurnRequest{
		SessionID: "s-1",
		Message:   "Something for camping",
		PriorTurns: []Turn{
			{Role: RoleUser, Content: "My budget is under $300"},
			{Role: RoleAssistant, Content: "Noted! What are you shopping for?"},
		},
	})
	require.NoError(t, err)

	req := f.model.lastRequest()
	assert.Contains(t, req.UserPayload, "user: My budget is under $300\nassistant: Noted! What are you shopping for?")
	assert.Contains(t, req.UserPayload, "Price range: $0 - $300")
}

func TestProcessTurn_PriorTurnsDiscardedOnFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.model.setErr(errors.New("status code: 503"))
	res, err := f.svc.ProcessTurn(ctx, TurnRequest{
		SessionID:  "s-1",
		Message:    "Something for camping",
		PriorTurns: []Turn{{Role: RoleUser, Content: "My budget is under $300"}},
	})
	require.NoError(t, err)
	require.True(t, res.Degraded)

	f.model.setErr(nil)
	_, err = f.svc.ProcessTurn(ctx, TurnRequest{
		SessionID:  "s-1",
		Message:    "Something for camping",
		PriorTurns: []Turn{{Role: RoleUser, Content: "I need it by Friday"}},
	})
	require.NoError(t, err)

	req := f.model.lastRequest()
	assert.Contains(t, req.UserPayload, "user: I need it by Friday")
	assert.NotContains(t, req.UserPayload, "My budget is under $300")
	assert.NotContains(t, req.UserPayload, "Price range:")
}

func TestProcessTurnStream(t *testing.T) {
	model := &fakeModel{fragments: []string{"Sure", ", here ", "you go."}}
	f := newFixture(t, model)

	var got []string
	res, err := f.svc.ProcessTurnStream(context.Background(), TurnRequest{SessionID: "s-1", Message: "I want to buy a tent"},
		func(fragment string) error {
			got = append(got, fragment)
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, []string{"Sure", ", here ", "you go."}, got)
	assert.Equal(t, "Sure, here you go.", res.Message)
	assert.Equal(t, dialogue.StateProductDiscovery, res.State)

	s, _ := f.svc.Snapshot("s-1")
	assert.Equal(t, 1, s.MessageCount)
}

func TestProcessTurnStream_WithholdsRecommendationBlock(t *testing.T) {
	model := &fakeModel{fragments: []string{
		"The Aspire 3 fits.\n`",
		"``json\n{\"message\": \"The Aspire 3 fits your budget.\", ",
		"\"recommendations\": [{\"product_id\": \"e-1\", \"match_score\": 0.9}]}\n```",
	}}
	f := newFixture(t, model)

	var shown strings.Builder
	res, err := f.svc.ProcessTurnStream(context.Background(), TurnRequest{SessionID: "s-1", Message: "Do you have any laptops under $500?"},
		func(fragment string) error {
			shown.WriteString(fragment)
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, "The Aspire 3 fits.\n", shown.String())
	assert.Equal(t, "The Aspire 3 fits your budget.", res.Message)
	require.Len(t, res.Recommendations, 1)
	assert.Equal(t, "e-1", res.Recommendations[0].ProductID)
}

func TestProcessTurnStream_EmitFailureAbandonsTurn(t *testing.T) {
	model := &fakeModel{fragments: []string{"a", "b"}}
	f := newFixture(t, model)

	_, err := f.svc.ProcessTurnStream(context.Background(), TurnRequest{SessionID: "s-1", Message: "I want to buy a tent"},
		func(string) error { return errors.New("client went away") })
	require.Error(t, err)

	s, _ := f.svc.Snapshot("s-1")
	assert.Equal(t, dialogue.StateGreeting, s.State)
}

func TestProcessTurnStream_FailureApologises(t *testing.T) {
	model := &fakeModel{fragments: []string{"partial"}, err: errors.New("status code: 500")}
	f := newFixture(t, model)

	res, err := f.svc.ProcessTurnStream(context.Background(), TurnRequest{SessionID: "s-1", Message: "I want to buy a tent"},
		func(string) error { return nil })
	require.NoError(t, err)

	assert.True(t, res.Degraded)
	assert.Equal(t, dialogue.StateGreeting, res.State)
}

func TestReset(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.ProcessTurn(context.Background(), TurnRequest{SessionID: "s-1", Message: "hi"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Reset("s-1"))
	_, ok := f.svc.Snapshot("s-1")
	assert.False(t, ok)

	assert.ErrorIs(t, f.svc.Reset("s-1"), ErrSessionNotFound)
}

func TestRegistryEvict(t *testing.T) {
	r := newRegistry(20)

	_, idle, err := r.acquire("idle", t0)
	require.NoError(t, err)
	r.release(idle)

	_, _, err = r.acquire("busy", t0)
	require.NoError(t, err)

	_, fresh, err := r.acquire("fresh", t0.Add(50*time.Minute))
	require.NoError(t, err)
	r.release(fresh)

	assert.Equal(t, 1, r.evict(t0.Add(time.Hour+time.Second), time.Hour))
	assert.Equal(t, 2, r.len())

	_, ok := r.snapshot("idle")
	assert.False(t, ok)
}

func TestRunCleanupLoop_StopsOnCancel(t *testing.T) {
	f := newFixture(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.RunCleanupLoop(ctx)
		close(done)
	}()

	cancel()
	<-done
}

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/oops"
	"golang.org/x/sync/errgroup"

	"shopassist/app/client/catalog"
	"shopassist/app/client/events"
	"shopassist/app/service/analyzer"
	"shopassist/app/service/assistant"
	"shopassist/app/service/dialogue"
)

type TurnRequest struct {
	SessionID    string
	CustomerID   string
	Message      string
	PriorTurns   []Turn
	PageCategory string
}

type TurnResult struct {
	SessionID       string                     `json:"session_id"`
	Message         string                     `json:"message"`
	Recommendations []assistant.Recommendation `json:"recommendations"`
	State           dialogue.State             `json:"state"`
	Redirected      bool                       `json:"redirected"`
	EngagementScore float64                    `json:"engagement_score"`
	// Degraded is set when the model was unavailable and the reply is the
	// fallback apology.
	Degraded bool `json:"degraded"`
}

// turn carries everything computed before the model call. next, transcript
// and userMessages are only written back to the entry once the model replies.
type turn struct {
	id           string
	entry        *entry
	message      string
	analysis     analyzer.Analysis
	previous     dialogue.Session
	next         dialogue.Session
	transcript   ChatHistory
	userMessages []string
	redirect     string
	request      assistant.Request
	started      time.Time
}

// ProcessTurn runs one turn. Turns of the same session are never processed
// concurrently: a second one fails with ErrTurnInFlight. A model failure
// yields the apology with the session left as it was; cancellation returns
// the context error, also without committing anything.
func (s *Service) ProcessTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	t, err := s.prepare(ctx, req)
	if err != nil {
		return TurnResult{}, err
	}
	defer s.sessions.release(t.entry)

	reply, err := s.model.Complete(ctx, t.request)
	return s.finish(ctx, t, reply, err)
}

// ProcessTurnStream is ProcessTurn with the reply streamed: display text is
// passed to emit as it arrives. The structured recommendation block is never
// emitted; it only shows up parsed in the result. An emit error abandons the
// turn.
func (s *Service) ProcessTurnStream(ctx context.Context, req TurnRequest, emit func(fragment string) error) (TurnResult, error) {
	t, err := s.prepare(ctx, req)
	if err != nil {
		return TurnResult{}, err
	}
	defer s.sessions.release(t.entry)

	var emitErr error
	raw, streamErr := assistant.CollectStream(s.model.Stream(ctx, t.request), func(fragment string) error {
		emitErr = emit(fragment)
		return emitErr
	})
	if emitErr != nil {
		return TurnResult{}, fmt.Errorf("emit fragment: %w", emitErr)
	}

	return s.finish(ctx, t, assistant.ParseReply(raw), streamErr)
}

func (s *Service) prepare(ctx context.Context, req TurnRequest) (*turn, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	now := s.now()

	id, e, err := s.sessions.acquire(req.SessionID, now)
	if err != nil {
		return nil, err
	}

	t := &turn{
		id:           id,
		entry:        e,
		message:      message,
		previous:     e.session,
		transcript:   e.transcript,
		userMessages: e.userMessages,
		started:      now,
	}

	if e.transcript.empty() && len(req.PriorTurns) > 0 {
		t.transcript = newChatHistory(e.transcript.size)
		t.userMessages = nil
		for _, pt := range req.PriorTurns {
			t.transcript.add(pt.Role, pt.Content, now)
			if pt.Role == RoleUser {
				t.userMessages = append(t.userMessages, pt.Content)
			}
		}
	}

	prev := t.previous
	t.analysis = s.analyzer.Analyze(message, analyzer.Snapshot{GeneralTurns: prev.GeneralTurns})

	history := append(slices.Clone(t.userMessages), message)
	extraction := s.extractor.Extract(history)

	next := prev.
		MergeInsights(extraction.Insights).
		WithShoppingIntent(t.analysis, extraction.Urgency)

	topic := dialogue.TopicFrom(t.analysis, prev.MessageCount+1, now)

	redirect := prev.State == dialogue.StateGeneralChat &&
		t.analysis.Intent != analyzer.IntentShopping &&
		s.policy.ShouldRedirect(prev, now)
	if redirect {
		current := topic
		if current == nil {
			current = prev.CurrentTopic()
		}
		t.redirect, next = s.policy.GeneratePrompt(next, current)
	}

	state := dialogue.NextState(prev.State, t.analysis, redirect)
	t.next = next.UpdateContext(state, topic, now)

	input := s.gather(ctx, req, t)
	t.request = assistant.NewRequest(input)

	slog.Debug("Turn prepared",
		"session_id", id,
		"intent", t.analysis.Intent,
		"topic", t.analysis.Topic,
		"category", t.analysis.Category,
		"state", prev.State,
		"next_state", state,
		"redirect", redirect,
	)

	return t, nil
}

// gather assembles the model payload, looking up the customer profile, the
// enrichment and the catalog in parallel. Lookup failures degrade to empty
// sections.
func (s *Service) gather(ctx context.Context, req TurnRequest, t *turn) assistant.Input {
	var (
		profile    string
		enrichment string
		products   []catalog.Product
	)

	g, gctx := errgroup.WithContext(ctx)

	if req.CustomerID != "" && s.catalog != nil {
		g.Go(func() error {
			p, err := s.catalog.CustomerProfile(gctx, req.CustomerID)
			if err != nil {
				if !errors.Is(err, catalog.ErrNotFound) {
					slog.Warn("Failed to load customer profile", "customer_id", req.CustomerID, "error", err)
				}
				return nil
			}
			profile = p.Format()
			return nil
		})
	}

	if req.CustomerID != "" && s.enricher != nil {
		g.Go(func() error {
			e := s.enricher.Fetch(gctx, req.CustomerID)
			if !e.Available {
				slog.Debug("CDP enrichment unavailable", "customer_id", req.CustomerID, "reason", e.FallbackReason)
			}
			enrichment = e.Format()
			return nil
		})
	}

	if s.catalog != nil {
		category := pie.FirstOr(pie.Filter([]string{
			t.analysis.Category,
			t.next.ShoppingIntent.Category,
			req.PageCategory,
		}, func(c string) bool { return c != "" }), "")

		g.Go(func() error {
			found, err := s.catalog.Products(gctx, category, s.settings.CatalogLimit)
			if err != nil {
				slog.Warn("Failed to load products", "category", category, "error", err)
				return nil
			}
			products = found
			return nil
		})
	}

	_ = g.Wait()

	catalogText := ""
	if s.catalog != nil {
		catalogText = catalog.FormatProducts(products)
	}

	return assistant.Input{
		Profile:        profile,
		Enrichment:     enrichment,
		PageCategory:   req.PageCategory,
		SessionSummary: t.next.Summary(),
		Catalog:        catalogText,
		History:        t.transcript.format(),
		Message:        t.message,
		StateHint:      t.next.State.Guidance(),
		Redirect:       t.redirect,
	}
}

func (s *Service) finish(ctx context.Context, t *turn, reply assistant.Reply, err error) (TurnResult, error) {
	if err != nil {
		if ctx.Err() != nil {
			slog.Info("Turn abandoned", "session_id", t.id, "error", ctx.Err())
			return TurnResult{}, oops.In("conversation").With("session_id", t.id).Wrapf(ctx.Err(), "turn abandoned")
		}

		slog.Error("Model call failed, replying with apology",
			"session_id", t.id,
			"state", t.previous.State,
			"permanent", errors.Is(err, assistant.ErrPermanent),
			"error", err,
		)

		return TurnResult{
			SessionID:       t.id,
			Message:         apologyMessage,
			Recommendations: []assistant.Recommendation{},
			State:           t.previous.State,
			EngagementScore: t.previous.EngagementScore(),
			Degraded:        true,
		}, nil
	}

	if ctx.Err() != nil {
		return TurnResult{}, oops.In("conversation").With("session_id", t.id).Wrapf(ctx.Err(), "turn abandoned")
	}

	now := s.now()
	next := t.next
	next.LastActivity = now

	t.transcript.add(RoleUser, t.message, t.started)
	t.transcript.add(RoleAssistant, reply.Message, now)

	s.sessions.commit(t.entry, next)
	t.entry.transcript = t.transcript
	t.entry.userMessages = append(t.userMessages, t.message)

	result := TurnResult{
		SessionID:       t.id,
		Message:         reply.Message,
		Recommendations: reply.Recommendations,
		State:           next.State,
		Redirected:      t.redirect != "",
		EngagementScore: next.EngagementScore(),
	}
	if result.Recommendations == nil {
		result.Recommendations = []assistant.Recommendation{}
	}

	s.publish(ctx, t, result, now)

	slog.Info("Turn committed",
		"session_id", t.id,
		"state", next.State,
		"previous_state", t.previous.State,
		"recommendations", len(result.Recommendations),
		"redirected", result.Redirected,
		"structured", reply.Structured,
		"duration", now.Sub(t.started),
	)

	return result, nil
}

func (s *Service) publish(ctx context.Context, t *turn, result TurnResult, now time.Time) {
	event := events.TurnCommitted{
		SessionID:       t.id,
		State:           string(result.State),
		PreviousState:   string(t.previous.State),
		Intent:          string(t.analysis.Intent),
		Category:        t.analysis.Category,
		Redirect:        result.Redirected,
		Recommendations: pie.Map(result.Recommendations, func(r assistant.Recommendation) string { return r.ProductID }),
		EngagementScore: result.EngagementScore,
		At:              now,
	}

	if err := s.publisher.Publish(ctx, event); err != nil {
		slog.Warn("Failed to publish turn event", "session_id", t.id, "error", err)
	}
}

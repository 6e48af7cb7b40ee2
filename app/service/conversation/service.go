// Package conversation drives one turn of a shopping conversation end to end:
// analysis, insight extraction, state transition, redirect policy, the model
// call and the final commit.
package conversation

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/samber/do"

	"shopassist/app/client/catalog"
	"shopassist/app/client/cdp"
	"shopassist/app/client/events"
	"shopassist/app/config"
	"shopassist/app/service/analyzer"
	"shopassist/app/service/assistant"
	"shopassist/app/service/dialogue"
	"shopassist/app/service/insight"
)

const apologyMessage = "I'm sorry, I'm having trouble answering right now. " +
	"Please try again in a moment, or take a look around the catalog and tell me what you're shopping for."

var (
	ErrTurnInFlight    = errors.New("a turn is already in progress for this session")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrSessionNotFound = errors.New("session not found")
)

type Model interface {
	Complete(ctx context.Context, req assistant.Request) (assistant.Reply, error)
	Stream(ctx context.Context, req assistant.Request) iter.Seq2[string, error]
}

type Catalog interface {
	Products(ctx context.Context, category string, limit int) ([]catalog.Product, error)
	CustomerProfile(ctx context.Context, id string) (catalog.CustomerProfile, error)
}

type Enricher interface {
	Fetch(ctx context.Context, customerID string) cdp.Enrichment
}

type Settings struct {
	Profile      analyzer.Profile
	Policy       dialogue.PolicyConfig
	HistorySize  int
	CatalogLimit int
	IdleTTL      time.Duration
}

func SettingsFrom(cfg config.Engine) Settings {
	profile := analyzer.ProfileByName(cfg.Profile)
	profile.ShoppingThreshold = cfg.ShoppingThreshold
	profile.MixedThreshold = cfg.MixedThreshold
	profile.RedirectAfterTurns = cfg.GeneralTurnsBeforeRedirect

	return Settings{
		Profile: profile,
		Policy: dialogue.PolicyConfig{
			GeneralTurns:       cfg.GeneralTurnsBeforeRedirect,
			MaxAttempts:        cfg.MaxRedirectAttempts,
			ShoppingTopicDecay: cfg.ShoppingTopicDecay,
		},
		HistorySize:  cfg.HistorySize,
		CatalogLimit: cfg.CatalogLimit,
		IdleTTL:      cfg.SessionIdleTTL,
	}
}

type Deps struct {
	Model     Model
	Catalog   Catalog
	Enricher  Enricher
	Publisher events.Publisher

	// Optional.
	Clock func() time.Time
	Rand  *rand.Rand
}

type Service struct {
	settings Settings

	model     Model
	catalog   Catalog
	enricher  Enricher
	publisher events.Publisher

	analyzer  *analyzer.Analyzer
	extractor *insight.Extractor
	policy    *dialogue.Policy
	sessions  *registry
	now       func() time.Time
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(Deps{
		Model:     do.MustInvoke[*assistant.Client](di),
		Catalog:   do.MustInvoke[*catalog.Client](di),
		Enricher:  do.MustInvoke[*cdp.Client](di),
		Publisher: do.MustInvoke[events.Publisher](di),
	}, SettingsFrom(cfg.Engine)), nil
}

func NewService(deps Deps, settings Settings) *Service {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}
	if settings.HistorySize <= 0 {
		settings.HistorySize = 20
	}
	if settings.CatalogLimit <= 0 {
		settings.CatalogLimit = 10
	}

	return &Service{
		settings:  settings,
		model:     deps.Model,
		catalog:   deps.Catalog,
		enricher:  deps.Enricher,
		publisher: publisher,
		analyzer:  analyzer.New(settings.Profile),
		extractor: insight.New(insight.WithClock(now)),
		policy:    dialogue.NewPolicy(settings.Policy, deps.Rand),
		sessions:  newRegistry(settings.HistorySize),
		now:       now,
	}
}

// Snapshot returns the last committed state of a session.
func (s *Service) Snapshot(id string) (dialogue.Session, bool) {
	return s.sessions.snapshot(id)
}

// Reset forgets a session, including its redirect attempts.
func (s *Service) Reset(id string) error {
	if err := s.sessions.remove(id); err != nil {
		return err
	}
	slog.Info("Session reset", "session_id", id)
	return nil
}

// RunCleanupLoop evicts idle sessions until ctx is done.
func (s *Service) RunCleanupLoop(ctx context.Context) {
	ttl := s.settings.IdleTTL
	if ttl <= 0 {
		return
	}

	interval := min(ttl/2, time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.evict(s.now(), ttl); n > 0 {
				slog.Info("Evicted idle sessions", "count", n, "remaining", s.sessions.len())
			}
		}
	}
}

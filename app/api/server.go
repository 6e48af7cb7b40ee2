// Package api exposes the conversation engine to the embedding widget over
// HTTP.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/do"

	"shopassist/app/config"
	"shopassist/app/service/conversation"
	"shopassist/app/service/dialogue"
)

const (
	shutdownTimeout = 5 * time.Second
	streamTimeout   = 2 * time.Minute
)

type Conversation interface {
	ProcessTurn(ctx context.Context, req conversation.TurnRequest) (conversation.TurnResult, error)
	ProcessTurnStream(ctx context.Context, req conversation.TurnRequest, emit func(string) error) (conversation.TurnResult, error)
	Snapshot(id string) (dialogue.Session, bool)
	Reset(id string) error
}

type ChatRequest struct {
	SessionID    string              `json:"session_id" validate:"omitempty,max=128"`
	CustomerID   string              `json:"customer_id" validate:"omitempty,max=128"`
	Message      string              `json:"message" validate:"required,max=4000"`
	PriorTurns   []conversation.Turn `json:"prior_turns" validate:"max=50,dive"`
	PageCategory string              `json:"page_category" validate:"omitempty,max=64"`
	Stream       bool                `json:"stream"`
}

type SessionView struct {
	dialogue.Session
	Summary         string  `json:"summary"`
	EngagementScore float64 `json:"engagement_score"`
}

type streamLine struct {
	Fragment string                   `json:"fragment,omitempty"`
	Result   *conversation.TurnResult `json:"result,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

var _ do.Shutdownable = (*Server)(nil)

type Server struct {
	addr         string
	conversation Conversation
	validate     *validator.Validate
	app          *fiber.App
}

func New(di *do.Injector) (*Server, error) {
	cfg := do.MustInvoke[*config.Config](di)
	return NewServer(cfg.HTTP, do.MustInvoke[*conversation.Service](di)), nil
}

func NewServer(cfg config.HTTP, conv Conversation) *Server {
	s := &Server{
		addr:         cfg.Addr,
		conversation: conv,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}

	s.app = fiber.New(fiber.Config{
		BodyLimit:             cfg.BodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	s.app.Get("/health", s.health)

	v1 := s.app.Group("/api/v1")
	v1.Post("/chat", s.chat)
	v1.Get("/sessions/:id", s.getSession)
	v1.Delete("/sessions/:id", s.resetSession)

	return s
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.app.Listen(s.addr)
	}()

	slog.Info("HTTP server started", "addr", s.addr)

	select {
	case <-ctx.Done():
		return s.app.ShutdownWithTimeout(shutdownTimeout)
	case err := <-errc:
		return err
	}
}

func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(shutdownTimeout)
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) chat(c *fiber.Ctx) error {
	var req ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := s.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	turn := conversation.TurnRequest{
		SessionID:    req.SessionID,
		CustomerID:   req.CustomerID,
		Message:      req.Message,
		PriorTurns:   req.PriorTurns,
		PageCategory: req.PageCategory,
	}

	if req.Stream {
		return s.chatStream(c, turn)
	}

	result, err := s.conversation.ProcessTurn(c.UserContext(), turn)
	if err != nil {
		return turnError(err)
	}

	return c.JSON(result)
}

// chatStream answers with newline-delimited JSON: one line per display
// fragment, then a final line with the result or the error. Fragments never
// carry the recommendation block; recommendations only arrive in the result.
func (s *Server) chatStream(c *fiber.Ctx, turn conversation.TurnRequest) error {
	c.Set(fiber.HeaderContentType, "application/x-ndjson")
	c.Set(fiber.HeaderCacheControl, "no-cache")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithTimeout(context.Background(), streamTimeout)
		defer cancel()

		enc := json.NewEncoder(w)
		write := func(line streamLine) error {
			if err := enc.Encode(line); err != nil {
				return err
			}
			return w.Flush()
		}

		result, err := s.conversation.ProcessTurnStream(ctx, turn, func(fragment string) error {
			return write(streamLine{Fragment: fragment})
		})
		if err != nil {
			slog.Warn("Streaming turn failed", "session_id", turn.SessionID, "error", err)
			_ = write(streamLine{Error: turnError(err).Error()})
			return
		}

		_ = write(streamLine{Result: &result})
	})

	return nil
}

func (s *Server) getSession(c *fiber.Ctx) error {
	session, ok := s.conversation.Snapshot(c.Params("id"))
	if !ok {
		return fiber.ErrNotFound
	}

	return c.JSON(SessionView{
		Session:         session,
		Summary:         session.Summary(),
		EngagementScore: session.EngagementScore(),
	})
}

func (s *Server) resetSession(c *fiber.Ctx) error {
	if err := s.conversation.Reset(c.Params("id")); err != nil {
		return turnError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func turnError(err error) *fiber.Error {
	switch {
	case errors.Is(err, conversation.ErrTurnInFlight):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, conversation.ErrEmptyMessage):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, conversation.ErrSessionNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(fiber.StatusRequestTimeout, "request abandoned")
	default:
		slog.Error("Turn failed", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "internal error")
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

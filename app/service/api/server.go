package api

import (
	"context"
	"errors"
	"familycoach/app/config"
	"familycoach/app/service/coach"
	"familycoach/app/service/family"
	"familycoach/app/service/session"
	"familycoach/app/util/metrics"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/samber/do"
	"github.com/samber/oops"
)

const (
	shutdownTimeout = 5 * time.Second

	genericFailure = "Failed to get response. Please try again."
)

var _ do.Shutdownable = (*Server)(nil)

type turnRequest struct {
	Message        string                 `json:"message" validate:"required"`
	FamilyMembers  []family.Member        `json:"familyMembers" validate:"dive"`
	MoodEntries    []family.MoodEntry     `json:"moodEntries" validate:"dive"`
	CalendarEvents []family.CalendarEvent `json:"calendarEvents" validate:"dive"`
}

type turnResponse struct {
	SessionID string `json:"sessionId"`
	Response  string `json:"response"`
	Risk      bool   `json:"risk"`
	Fallback  bool   `json:"fallback"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	app      *fiber.App
	coach    *coach.Service
	metrics  *metrics.Metrics
	validate *validator.Validate

	listen         string
	requestTimeout time.Duration
}

func New(di *do.Injector) (*Server, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewServer(
		do.MustInvoke[*coach.Service](di),
		do.MustInvoke[*metrics.Metrics](di),
		cfg.HTTP,
	), nil
}

func NewServer(coachSvc *coach.Service, m *metrics.Metrics, cfg config.HTTP) *Server {
	s := &Server{
		coach:          coachSvc,
		metrics:        m,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		listen:         cfg.Listen,
		requestTimeout: cfg.RequestTimeout,
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())

	s.app.Get("/healthz", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))

	v1 := s.app.Group("/v1")
	v1.Post("/sessions", s.handleCreateSession)
	v1.Get("/sessions/:id/turns", s.handleHistory)
	v1.Post("/sessions/:id/turns", s.handleTurn)

	return s
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		if err := s.Shutdown(); err != nil {
			slog.Error("HTTP server shutdown failed", "error", err)
		}
	}()

	slog.Info("HTTP server listening", "addr", s.listen)

	if err := s.app.Listen(s.listen); err != nil {
		return oops.In("api").Wrapf(err, "failed to serve %s", s.listen)
	}

	return nil
}

func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(shutdownTimeout)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	id, err := s.coach.CreateSession(c.UserContext())
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"sessionId": id})
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	history, err := s.coach.History(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if history == nil {
		history = []session.Turn{}
	}

	return c.JSON(fiber.Map{"turns": history})
}

func (s *Server) handleTurn(c *fiber.Ctx) error {
	var req turnRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := s.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), s.requestTimeout)
	defer cancel()

	snapshot := family.NewSnapshot(req.FamilyMembers, req.MoodEntries, req.CalendarEvents)

	reply, err := s.coach.Reply(ctx, c.Params("id"), snapshot, req.Message)
	if err != nil {
		return err
	}

	return c.JSON(turnResponse{
		SessionID: reply.SessionID,
		Response:  reply.Response,
		Risk:      reply.Risk,
		Fallback:  reply.Fallback,
	})
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status, message := statusFor(err)

	if status >= fiber.StatusInternalServerError {
		slog.Error("Request failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err,
		)
	} else {
		slog.Debug("Request rejected",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"error", err,
		)
	}

	return c.Status(status).JSON(errorResponse{Error: message})
}

func statusFor(err error) (int, string) {
	var fiberErr *fiber.Error

	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code, fiberErr.Message
	case errors.Is(err, coach.ErrEmptyMessage):
		return fiber.StatusBadRequest, coach.ErrEmptyMessage.Error()
	case errors.Is(err, session.ErrNotFound):
		return fiber.StatusNotFound, session.ErrNotFound.Error()
	case errors.Is(err, coach.ErrTurnInProgress):
		return fiber.StatusConflict, coach.ErrTurnInProgress.Error()
	default:
		return fiber.StatusBadGateway, genericFailure
	}
}

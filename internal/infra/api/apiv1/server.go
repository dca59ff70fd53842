// Package apiv1 exposes the chat backend under /api/v1.
package apiv1

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"colleague-chat/internal/domain"
	"colleague-chat/internal/infra/api"
	"colleague-chat/internal/infra/security"
	"colleague-chat/internal/usecase"
)

// Authenticator issues and checks bearer tokens.
type Authenticator interface {
	api.TokenParser
	Login(username, password string) (string, time.Time, error)
}

var _ Authenticator = (*security.AuthManager)(nil)

type Server struct {
	chat    usecase.ChatUseCase
	relay   usecase.RelayUseCase
	auth    Authenticator
	tr      usecase.Localizer
	timeout time.Duration
	log     *zerolog.Logger
}

func NewServer(chat usecase.ChatUseCase, relay usecase.RelayUseCase, auth Authenticator, tr usecase.Localizer, timeout time.Duration, logger *zerolog.Logger) *Server {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Server{chat: chat, relay: relay, auth: auth, tr: tr, timeout: timeout, log: logger}
}

// RegisterAPIV1 attaches all /api/v1 routes to r.
func RegisterAPIV1(r chi.Router, s *Server) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(api.Timeout(s.timeout))
			r.Post("/auth/login", s.login)
			r.Get("/auth/verify", s.verify)
		})

		r.Group(func(r chi.Router) {
			r.Use(api.RequireAuth(s.auth, s.log))

			// streamed; bounded by the client connection instead of a deadline
			r.Post("/chat/turns", s.sendTurn)

			r.Group(func(r chi.Router) {
				r.Use(api.Timeout(s.timeout))
				r.Get("/colleagues", s.listColleagues)

				r.Post("/chat/runs", s.startRun)
				r.Get("/chat/runs/{threadID}/{runID}", s.runStatus)

				r.Get("/sessions", s.listSessions)
				r.Post("/sessions", s.newSession)
				r.Post("/sessions/{sessionID}/select", s.selectSession)
				r.Delete("/sessions/{sessionID}", s.deleteSession)

				r.Post("/funnel/start", s.startFunnel)
				r.Post("/funnel/advance", s.advanceFunnel)

				r.Post("/mentions/resolve", s.resolveMentions)
				r.Post("/mentions/suggest", s.suggestMention)
				r.Post("/mentions/apply", s.applyMention)
			})
		})
	})
}

// ---- helpers ----

type errorBody struct {
	Error struct {
		Category string `json:"category"`
		Message  string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// statusFor maps error categories to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTurnInProgress):
		return http.StatusConflict
	}
	switch domain.CategoryOf(err) {
	case domain.CategoryValidation:
		return http.StatusBadRequest
	case domain.CategoryAuth:
		return http.StatusUnauthorized
	case domain.CategoryRateLimit:
		return http.StatusTooManyRequests
	case domain.CategoryQuota:
		return http.StatusPaymentRequired
	case domain.CategoryTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	l := s.log.With().Str("path", r.URL.Path).Logger()
	if status >= 500 {
		l.Error().Err(err).Msg("request failed")
	} else {
		l.Debug().Err(err).Msg("request rejected")
	}
	ev := usecase.ErrorEvent(s.tr, err)
	var body errorBody
	body.Error.Category = ev.Category
	body.Error.Message = ev.Message
	writeJSON(w, status, body)
}

func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return domain.ErrInvalidArgument
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return errors.Join(domain.ErrInvalidArgument, err)
	}
	return nil
}

func owner(r *http.Request) string {
	p, _ := domain.PrincipalFrom(r.Context())
	return p.Subject
}

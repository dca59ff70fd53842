package apiv1

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"colleague-chat/internal/domain"
	"colleague-chat/internal/infra/logging"
	"colleague-chat/internal/usecase"
)

// ---- auth ----

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tok, exp, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: tok, ExpiresAt: exp})
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	if _, err := s.auth.ParseFromRequest(r); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]bool{"valid": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

// ---- chat ----

type turnRequest struct {
	SessionID   string `json:"sessionId"`
	Text        string `json:"text"`
	ColleagueID string `json:"colleagueId"`
}

// sendTurn streams one turn. Errors before the first event use a status code;
// later errors become an error event.
func (s *Server) sendTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx := r.Context()
	sse := newSSEWriter(w)
	err := s.chat.SendTurn(ctx, owner(r), req.SessionID, req.Text, req.ColleagueID, sse.Send)
	if err == nil {
		return
	}
	if !sse.Started() {
		s.writeError(w, r, err)
		return
	}
	if ctx.Err() != nil {
		logging.With(ctx, s.log).Info().Msg("client disconnected during turn")
		return
	}
	logging.With(ctx, s.log).Warn().Err(err).Msg("turn failed after stream start")
	sse.Send(usecase.ErrorEvent(s.tr, err))
}

type runRequest struct {
	Text        string `json:"text"`
	ColleagueID string `json:"colleagueId"`
	ThreadID    string `json:"threadId"`
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	started, err := s.relay.StartRun(r.Context(), usecase.TurnRequest{
		Text:        req.Text,
		ColleagueID: req.ColleagueID,
		ThreadID:    req.ThreadID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, started)
}

func (s *Server) runStatus(w http.ResponseWriter, r *http.Request) {
	out, err := s.relay.RunStatus(r.Context(), chi.URLParam(r, "threadID"), chi.URLParam(r, "runID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listColleagues(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.chat.Colleagues()})
}

// ---- sessions ----

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.chat.ListSessions(r.Context(), owner(r), r.URL.Query().Get("colleague"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type newSessionRequest struct {
	ColleagueID string `json:"colleagueId"`
}

func (s *Server) newSession(w http.ResponseWriter, r *http.Request) {
	var req newSessionRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	sess, err := s.chat.NewSession(r.Context(), owner(r), req.ColleagueID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) selectSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.chat.SelectSession(r.Context(), owner(r), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.DeleteSession(r.Context(), owner(r), chi.URLParam(r, "sessionID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- funnel ----

type funnelRequest struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

func (s *Server) startFunnel(w http.ResponseWriter, r *http.Request) {
	var req funnelRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.chat.StartFunnel(r.Context(), owner(r), req.SessionID, req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) advanceFunnel(w http.ResponseWriter, r *http.Request) {
	var req funnelRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.chat.AdvanceFunnel(r.Context(), owner(r), req.SessionID, req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ---- mentions ----

type mentionRequest struct {
	Text        string `json:"text"`
	Caret       int    `json:"caret"`
	Exclude     string `json:"exclude"`
	ColleagueID string `json:"colleagueId"`
}

func (s *Server) resolveMentions(w http.ResponseWriter, r *http.Request) {
	var req mentionRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ids := s.chat.ResolveMentions(req.Text, req.Exclude)
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"ids": ids})
}

func (s *Server) suggestMention(w http.ResponseWriter, r *http.Request) {
	var req mentionRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sug, ok := s.chat.SuggestMention(req.Text, req.Caret, req.Exclude)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"active": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": true, "partial": sug.Partial, "candidates": sug.Candidates})
}

func (s *Server) applyMention(w http.ResponseWriter, r *http.Request) {
	var req mentionRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.ColleagueID == "" {
		s.writeError(w, r, domain.ErrInvalidArgument)
		return
	}
	text, caret, err := s.chat.ApplyMention(req.Text, req.Caret, req.ColleagueID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"text": text, "caret": caret})
}

package webchat

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-go-golems/pinchchat/pkg/export"
	"github.com/go-go-golems/pinchchat/pkg/history"
	"github.com/go-go-golems/pinchchat/pkg/i18n"
	"github.com/go-go-golems/pinchchat/pkg/provision"
)

type agentDeleteRequest struct {
	ID string `json:"id"`
}

type reconcileRequest struct {
	Messages []history.Message `json:"messages"`
}

type historyResponse struct {
	SessionKey string            `json:"sessionKey"`
	Messages   []history.Message `json:"messages"`
}

func (s *Server) registerAPIHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/agents", s.handleListAgents)
	mux.HandleFunc("POST /api/agents", s.handleCreateAgent)
	mux.HandleFunc("DELETE /api/agents", s.handleDeleteAgent)

	mux.HandleFunc("GET /api/history", s.handleListSessions)
	mux.HandleFunc("GET /api/history/{key}", s.handleGetHistory)
	mux.HandleFunc("POST /api/history/{key}/reconcile", s.handleReconcile)
	mux.HandleFunc("POST /api/history/{key}/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/history/{key}/export.md", s.handleExportMarkdown)
	mux.HandleFunc("GET /api/history/{key}/stats", s.handleStats)

	mux.HandleFunc("GET /ws", s.handleWS)
}

func (s *Server) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	if s.provisioner == nil {
		writeError(w, http.StatusServiceUnavailable, "agent provisioning is disabled")
		return
	}
	agents, err := s.provisioner.List()
	if err != nil {
		s.logger.Error().Err(err).Msg("list agents failed")
		writeError(w, statusForError(err), err.Error())
		return
	}
	if agents == nil {
		agents = []provision.AgentEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, req *http.Request) {
	if s.provisioner == nil {
		writeError(w, http.StatusServiceUnavailable, "agent provisioning is disabled")
		return
	}
	var spec provision.AgentSpec
	if err := decodeJSONBody(w, req, &spec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(spec.ID) == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	entry, err := s.provisioner.Create(req.Context(), spec)
	if err != nil {
		s.logger.Warn().Err(err).Str("agent_id", spec.ID).Msg("create agent failed")
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "agent": entry})
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, req *http.Request) {
	if s.provisioner == nil {
		writeError(w, http.StatusServiceUnavailable, "agent provisioning is disabled")
		return
	}
	var body agentDeleteRequest
	if err := decodeJSONBody(w, req, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.ID) == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if err := s.provisioner.Delete(req.Context(), body.ID); err != nil {
		s.logger.Warn().Err(err).Str("agent_id", body.ID).Msg("delete agent failed")
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListSessions(w http.ResponseWriter, req *http.Request) {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	sessions, err := s.history.Sessions(req.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list sessions failed")
		writeError(w, http.StatusInternalServerError, "list sessions failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, req *http.Request) {
	key := req.PathValue("key")
	msgs, err := s.history.History(req.Context(), key)
	if err != nil {
		s.logger.Error().Err(err).Str("session_key", key).Msg("load history failed")
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{SessionKey: key, Messages: msgs})
}

func (s *Server) handleReconcile(w http.ResponseWriter, req *http.Request) {
	key := req.PathValue("key")
	var body reconcileRequest
	if err := decodeJSONBody(w, req, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.history.Apply(req.Context(), key, body.Messages)
	if err != nil {
		s.logger.Error().Err(err).Str("session_key", key).Msg("reconcile failed")
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRefresh(w http.ResponseWriter, req *http.Request) {
	key := req.PathValue("key")
	res, err := s.history.Refresh(req.Context(), key)
	if err != nil {
		s.logger.Error().Err(err).Str("session_key", key).Msg("refresh failed")
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExportMarkdown(w http.ResponseWriter, req *http.Request) {
	key := req.PathValue("key")
	msgs, err := s.history.History(req.Context(), key)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	var tr i18n.Translator = i18n.Default()
	if loc := req.URL.Query().Get("locale"); i18n.IsSupported(loc) {
		tr = i18n.NewRegistry(loc)
	}
	md := export.Markdown(msgs, req.URL.Query().Get("label"), tr)
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportFileName(key)+`"`)
	_, _ = w.Write([]byte(md))
}

func (s *Server) handleStats(w http.ResponseWriter, req *http.Request) {
	key := req.PathValue("key")
	msgs, err := s.history.History(req.Context(), key)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	stats := export.ComputeStats(msgs, s.tokens)
	writeJSON(w, http.StatusOK, map[string]any{"sessionKey": key, "stats": stats, "tokens": stats.Tokens()})
}

// exportFileName keeps only characters that are safe in a header value and
// a file name.
func exportFileName(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "conversation.md"
	}
	return b.String() + ".md"
}

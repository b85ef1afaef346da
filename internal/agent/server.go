package agent

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/user/wschat/internal/types"
)

// relayBody accepts both the current and the legacy field names.
type relayBody struct {
	Username    string `json:"username"`
	WorkspaceID string `json:"workspace_id"`
	Message     string `json:"message"`

	SenderUserName    string `json:"senderUserName"`
	LegacyWorkspaceID string `json:"workspaceId"`
}

func (b relayBody) request() types.RelayRequest {
	req := types.RelayRequest{
		Username:    b.Username,
		WorkspaceID: types.WorkspaceID(b.WorkspaceID),
		Message:     b.Message,
	}
	if req.Username == "" {
		req.Username = b.SenderUserName
	}
	if req.WorkspaceID == "" {
		req.WorkspaceID = types.WorkspaceID(b.LegacyWorkspaceID)
	}
	return req
}

// session tracks one workspace's activity as seen by the relay.
type session struct {
	Workspace types.WorkspaceID `json:"workspace_id"`
	Members   []types.UserID    `json:"members,omitempty"`
	Relays    int               `json:"relays"`
	StartedAt time.Time         `json:"started_at"`
	EndedAt   *time.Time        `json:"ended_at,omitempty"`
}

// Server exposes the agent over HTTP.
type Server struct {
	agent  *Agent
	logger *slog.Logger
	mux    *http.ServeMux
	now    func() time.Time

	mu       sync.Mutex
	sessions map[types.WorkspaceID]*session
}

func NewServer(agent *Agent, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		agent:    agent,
		logger:   logger,
		mux:      http.NewServeMux(),
		now:      time.Now,
		sessions: make(map[types.WorkspaceID]*session),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /relay", s.handleRelay)
	s.mux.HandleFunc("POST /api/workspace/{id}/end-session", s.handleEndSession)
	s.mux.HandleFunc("POST /joinWorkspace", s.handleJoin)
	s.mux.HandleFunc("GET /api/sessions", s.handleSessions)
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	active, pending := s.agent.Stats()
	s.mu.Lock()
	open := 0
	for _, sess := range s.sessions {
		if sess.EndedAt == nil {
			open++
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"service":         "wschat agent relay",
		"agent":           s.agent.name,
		"active_jobs":     active,
		"pending_jobs":    pending,
		"open_workspaces": open,
		"endpoints":       []string{"GET /health", "POST /relay", "POST /api/workspace/{id}/end-session", "POST /joinWorkspace", "GET /api/sessions"},
	})
}

// sessionLocked returns the workspace's session, starting a new one when
// none exists or the previous one ended. Caller must hold s.mu.
func (s *Server) sessionLocked(id types.WorkspaceID) *session {
	sess, ok := s.sessions[id]
	if !ok || sess.EndedAt != nil {
		sess = &session{Workspace: id, StartedAt: s.now()}
		s.sessions[id] = sess
	}
	return sess
}

func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	var body relayBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req := body.request()
	if req.WorkspaceID == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "workspace_id and message are required"})
		return
	}

	id, err := s.agent.Submit(req)
	if err != nil {
		if errors.Is(err, types.ErrNoWorkspace) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		s.logger.Error("relay rejected", "workspace_id", req.WorkspaceID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "agent busy"})
		return
	}

	s.mu.Lock()
	s.sessionLocked(req.WorkspaceID).Relays++
	s.mu.Unlock()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "relay_id": string(id)})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := types.WorkspaceID(r.PathValue("id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "workspace id required"})
		return
	}

	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok && sess.EndedAt == nil {
		now := s.now()
		sess.EndedAt = &now
	}
	s.mu.Unlock()

	s.logger.Info("session ended", "workspace_id", id, "known", ok)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended", "workspace_id": string(id)})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	user := types.UserID(r.URL.Query().Get("user_id"))
	id := types.WorkspaceID(r.URL.Query().Get("workspace_id"))
	if user == "" || id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id and workspace_id are required"})
		return
	}

	s.mu.Lock()
	sess := s.sessionLocked(id)
	known := false
	for _, m := range sess.Members {
		if m == user {
			known = true
			break
		}
	}
	if !known {
		sess.Members = append(sess.Members, user)
	}
	s.mu.Unlock()

	s.logger.Info("member joined", "workspace_id", id, "user_id", user)
	writeJSON(w, http.StatusOK, map[string]string{"status": "joined", "workspace_id": string(id)})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		cp := *sess
		cp.Members = append([]types.UserID(nil), sess.Members...)
		out = append(out, cp)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	writeJSON(w, http.StatusOK, out)
}

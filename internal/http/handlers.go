package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/example/carpool-client/internal/api"
	"github.com/example/carpool-client/internal/models"
	"github.com/example/carpool-client/internal/views"
)

type errorPayload struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an error kind to a gateway status. Backend 4xx statuses
// pass through; backend 5xx and network failures become 502.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := string(api.KindOf(err))
	switch api.KindOf(err) {
	case api.KindUnauthenticated:
		status = http.StatusUnauthorized
	case api.KindInvalidInput:
		status = http.StatusBadRequest
	case api.KindDuplicateAccount:
		status = http.StatusConflict
	case api.KindNetwork:
		status = http.StatusBadGateway
	case api.KindHTTP:
		status = api.StatusOf(err)
		if status < 400 || status >= 500 {
			status = http.StatusBadGateway
		}
	default:
		kind = "internal"
	}
	writeJSON(w, status, errorPayload{Error: errorBody{Kind: kind, Message: err.Error()}})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, &api.Error{Kind: api.KindInvalidInput, Message: msg})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &api.Error{Kind: api.KindInvalidInput, Message: "invalid JSON body", Err: err}
	}
	return nil
}

func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.session.CheckAuth(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "reason": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		badRequest(w, "email and password are required")
		return
	}
	if err := s.session.SignIn(r.Context(), s.backend, req.Email, req.Password); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Logout(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("type")
	if raw == "" {
		raw = string(models.SearchAll)
	}
	t, err := models.ParseSearchType(raw)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := s.search.Search(r.Context(), t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.search.Snapshot())
}

type connectRequest struct {
	ReceiverID int64 `json:"receiverId"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ReceiverID <= 0 {
		badRequest(w, "receiverId is required")
		return
	}
	if err := s.search.Connect(r.Context(), req.ReceiverID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.search.Snapshot())
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	s.connections.Load(r.Context())
	writeJSON(w, http.StatusOK, s.connections.Snapshot())
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	if err := s.connections.Accept(r.Context(), pathID(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.connections.Snapshot())
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	if err := s.connections.Reject(r.Context(), pathID(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.connections.Snapshot())
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	s.messages.LoadConversations(r.Context())
	writeJSON(w, http.StatusOK, s.messages.Snapshot())
}

func (s *Server) handleThread(w http.ResponseWriter, r *http.Request) {
	if err := s.messages.Select(r.Context(), pathID(r, "userId")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.messages.Snapshot())
}

type sendRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID := pathID(r, "userId")
	if s.messages.Selected() != userID {
		if err := s.messages.Select(r.Context(), userID); err != nil {
			writeError(w, err)
			return
		}
	}
	// the path names the recipient; another request may have moved the
	// selection since
	if err := s.messages.SendTo(r.Context(), userID, req.Content); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.messages.Snapshot())
}

func (s *Server) handleUnread(w http.ResponseWriter, r *http.Request) {
	s.unread.Refresh(r.Context())
	writeJSON(w, http.StatusOK, s.unread.Snapshot())
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	tab := views.TabMyGroups
	if raw := r.URL.Query().Get("tab"); raw != "" {
		t, err := views.ParseGroupsTab(raw)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		tab = t
	}
	if err := s.groups.SetTab(r.Context(), tab); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.groups.Snapshot())
}

func (s *Server) handleOpenGroups(w http.ResponseWriter, r *http.Request) {
	fetched := false
	if raw := r.URL.Query().Get("max_detour_miles"); raw != "" {
		miles, err := strconv.ParseFloat(raw, 64)
		if err != nil || miles < 0 {
			badRequest(w, "max_detour_miles must be a non-negative number")
			return
		}
		if err := s.groups.SetMaxDetour(r.Context(), miles); err != nil {
			writeError(w, err)
			return
		}
		fetched = s.groups.Snapshot().Page.Value.Tab == views.TabFindGroups
	}
	if !fetched {
		if err := s.groups.SetTab(r.Context(), views.TabFindGroups); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.groups.Snapshot())
}

func (s *Server) handleGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.groups.SelectGroup(r.Context(), pathID(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.groups.Snapshot())
}

type createGroupRequest struct {
	Name     string `json:"name"`
	MaxSeats int    `json:"maxSeats"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	g, err := s.groups.CreateGroup(r.Context(), req.Name, req.MaxSeats)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"group": g, "view": s.groups.Snapshot()})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	if err := s.groups.Join(r.Context(), pathID(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.groups.Snapshot())
}

type voteRequest struct {
	Vote string `json:"vote"`
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	vote, err := models.ParseVote(req.Vote)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	res, err := s.groups.Vote(r.Context(), pathID(r, "id"), pathID(r, "rid"), vote)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": res, "message": res.Summary(), "view": s.groups.Snapshot()})
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	if err := s.groups.Leave(r.Context(), pathID(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.groups.Snapshot())
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := s.groups.Close(r.Context(), pathID(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.groups.Snapshot())
}

func (s *Server) handleMyGroupRequests(w http.ResponseWriter, r *http.Request) {
	if err := s.groups.SetTab(r.Context(), views.TabMyRequests); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.groups.Snapshot())
}

var errUnknownView = errors.New("unknown view")

func errUnknownViewFor(name string) error {
	return &api.Error{Kind: api.KindInvalidInput, Message: errUnknownView.Error() + " " + strconv.Quote(name), Err: errUnknownView}
}

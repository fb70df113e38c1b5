package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"canopy/internal/auth"
	"canopy/internal/domain"
	"canopy/internal/rbac"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	log        zerolog.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger zerolog.Logger) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, log: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 4 || parts[0] != "api" || parts[1] != "workspaces" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	workspaceID := parts[2]
	role, err := s.service.WorkspaceRole(r.Context(), workspaceID, session.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if role == rbac.RoleNone {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return
	}

	s.handleWorkspace(w, r, session, role, workspaceID, parts[3:])
}

func (s *HTTPServer) handleWorkspace(w http.ResponseWriter, r *http.Request, session Session, role rbac.Role, workspaceID string, parts []string) {
	switch {
	case parts[0] == "tasks":
		s.handleTasks(w, r, session, role, workspaceID, parts[1:])
		return
	case parts[0] == "notes":
		s.handleNotes(w, r, session, role, workspaceID, parts[1:])
		return
	}

	if r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}
	if !s.allow(w, role, rbac.ActionRead) {
		return
	}

	switch strings.Join(parts, "/") {
	case "board":
		columns, err := s.service.Board(r.Context(), workspaceID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"columns": columns})
	case "inbox":
		entries, err := s.service.Inbox(r.Context(), workspaceID, session.UserID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": entries})
	case "inbox/count":
		count, err := s.service.InboxCount(r.Context(), workspaceID, session.UserID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": count})
	case "inbox/snoozed":
		entries, err := s.service.Snoozed(r.Context(), workspaceID, session.UserID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": entries})
	case "trash":
		view, err := s.service.Trash(r.Context(), workspaceID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case "search":
		limit := 20
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be a positive integer", nil)
				return
			}
			limit = parsed
		}
		payload, err := s.service.Search(r.Context(), workspaceID, r.URL.Query().Get("q"), r.URL.Query().Get("type"), limit)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleTasks(w http.ResponseWriter, r *http.Request, session Session, role rbac.Role, workspaceID string, parts []string) {
	ctx := r.Context()

	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			if !s.allow(w, role, rbac.ActionRead) {
				return
			}
			tasks, err := s.service.TaskChildren(ctx, workspaceID, nil)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
		case http.MethodPost:
			if !s.allow(w, role, rbac.ActionWrite) {
				return
			}
			var body CreateTaskInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			task, err := s.service.CreateTask(ctx, workspaceID, session.UserID, body)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, task)
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		}
		return
	}

	taskID := parts[0]
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			if !s.allow(w, role, rbac.ActionRead) {
				return
			}
			task, err := s.service.GetTask(ctx, workspaceID, taskID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, task)
		case http.MethodPatch:
			if !s.allow(w, role, rbac.ActionWrite) {
				return
			}
			var raw map[string]json.RawMessage
			if err := decodeBody(r, &raw); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			patch, err := decodeTaskPatch(raw)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			task, err := s.service.UpdateTask(ctx, workspaceID, taskID, patch)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, task)
		case http.MethodDelete:
			if !s.allow(w, role, rbac.ActionPurge) {
				return
			}
			if err := s.service.PurgeTask(ctx, workspaceID, taskID); err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		}
		return
	}

	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}

	action := parts[1]
	if r.Method == http.MethodGet && action == "children" {
		if !s.allow(w, role, rbac.ActionRead) {
			return
		}
		tasks, err := s.service.TaskChildren(ctx, workspaceID, &taskID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}
	if !s.allow(w, role, rbac.ActionWrite) {
		return
	}

	switch action {
	case "move":
		var body struct {
			ParentID *string `json:"parentId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		task, err := s.service.MoveTask(ctx, workspaceID, taskID, body.ParentID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, task)
	case "status":
		var body struct {
			Status string `json:"status"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		status := domain.TaskStatus(strings.ToUpper(strings.TrimSpace(body.Status)))
		if err := s.service.UpdateTaskStatus(ctx, workspaceID, taskID, status); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": taskID, "status": status})
	case "trash":
		var body struct {
			CascadeChildren bool `json:"cascadeChildren"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.TrashTask(ctx, workspaceID, taskID, body.CascadeChildren); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case "restore":
		task, err := s.service.RestoreTask(ctx, workspaceID, taskID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, task)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleNotes(w http.ResponseWriter, r *http.Request, session Session, role rbac.Role, workspaceID string, parts []string) {
	ctx := r.Context()

	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			if !s.allow(w, role, rbac.ActionRead) {
				return
			}
			notes, err := s.service.NoteChildren(ctx, workspaceID, nil)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"notes": notes})
		case http.MethodPost:
			if !s.allow(w, role, rbac.ActionWrite) {
				return
			}
			var body CreateNoteInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			note, err := s.service.CreateNote(ctx, workspaceID, session.UserID, body)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, note)
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		}
		return
	}

	noteID := parts[0]
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			if !s.allow(w, role, rbac.ActionRead) {
				return
			}
			note, err := s.service.GetNote(ctx, workspaceID, noteID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, note)
		case http.MethodPatch:
			if !s.allow(w, role, rbac.ActionWrite) {
				return
			}
			var body UpdateNoteInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			note, err := s.service.UpdateNote(ctx, workspaceID, noteID, body)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, note)
		case http.MethodDelete:
			if !s.allow(w, role, rbac.ActionPurge) {
				return
			}
			if err := s.service.PurgeNote(ctx, workspaceID, noteID); err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		}
		return
	}

	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}

	action := parts[1]
	if r.Method == http.MethodGet && action == "children" {
		if !s.allow(w, role, rbac.ActionRead) {
			return
		}
		notes, err := s.service.NoteChildren(ctx, workspaceID, &noteID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"notes": notes})
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}
	if !s.allow(w, role, rbac.ActionWrite) {
		return
	}

	switch action {
	case "move":
		var body struct {
			ParentID *string `json:"parentId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		note, err := s.service.MoveNote(ctx, workspaceID, noteID, body.ParentID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, note)
	case "trash":
		if err := s.service.TrashNote(ctx, workspaceID, noteID); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case "restore":
		note, err := s.service.RestoreNote(ctx, workspaceID, noteID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, note)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

// decodeTaskPatch keeps absent fields unchanged and turns explicit nulls on
// assigneeId and dueDate into clears.
func decodeTaskPatch(raw map[string]json.RawMessage) (domain.TaskPatch, error) {
	var patch domain.TaskPatch
	isNull := func(value json.RawMessage) bool { return strings.TrimSpace(string(value)) == "null" }

	if value, ok := raw["title"]; ok {
		var title string
		if err := json.Unmarshal(value, &title); err != nil {
			return patch, validationError("title must be a string")
		}
		title = strings.TrimSpace(title)
		patch.Title = &title
	}
	if value, ok := raw["description"]; ok {
		description := json.RawMessage(nil)
		if !isNull(value) {
			description = append(json.RawMessage(nil), value...)
		}
		patch.Description = &description
	}
	if value, ok := raw["priority"]; ok {
		var priority string
		if err := json.Unmarshal(value, &priority); err != nil {
			return patch, validationError("priority must be a string")
		}
		p := domain.Priority(strings.ToUpper(strings.TrimSpace(priority)))
		patch.Priority = &p
	}
	if value, ok := raw["assigneeId"]; ok {
		if isNull(value) {
			patch.ClearAssignee = true
		} else {
			var assignee string
			if err := json.Unmarshal(value, &assignee); err != nil || strings.TrimSpace(assignee) == "" {
				return patch, validationError("assigneeId must be a non-empty string or null")
			}
			assignee = strings.TrimSpace(assignee)
			patch.AssigneeID = &assignee
		}
	}
	if value, ok := raw["dueDate"]; ok {
		if isNull(value) {
			patch.ClearDueDate = true
		} else {
			var due time.Time
			if err := json.Unmarshal(value, &due); err != nil {
				return patch, validationError("dueDate must be an RFC 3339 timestamp or null")
			}
			due = due.UTC()
			patch.DueDate = &due
		}
	}
	if value, ok := raw["archived"]; ok {
		var archived bool
		if err := json.Unmarshal(value, &archived); err != nil {
			return patch, validationError("archived must be a boolean")
		}
		patch.Archived = &archived
	}
	return patch, nil
}

func (s *HTTPServer) allow(w http.ResponseWriter, role rbac.Role, action rbac.Action) bool {
	if rbac.Can(role, action) {
		return true
	}
	writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	return false
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("request_id", requestID(r.Context())).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Msg("request")
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

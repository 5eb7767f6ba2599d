// Package app exposes the HTTP surface of the API.
package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"teamflow/api/internal/account"
	"teamflow/api/internal/activity"
	"teamflow/api/internal/assign"
	"teamflow/api/internal/auth"
	"teamflow/api/internal/chat"
	"teamflow/api/internal/comment"
	"teamflow/api/internal/files"
	"teamflow/api/internal/github"
	"teamflow/api/internal/member"
	"teamflow/api/internal/notify"
	"teamflow/api/internal/project"
	"teamflow/api/internal/realtime"
	"teamflow/api/internal/report"
	"teamflow/api/internal/search"
	"teamflow/api/internal/store"
	"teamflow/api/internal/task"
)

// Services bundles everything the HTTP layer dispatches into.
type Services struct {
	Store         *store.PostgresStore
	Sessions      *SessionManager
	Accounts      *account.Service
	Projects      *project.Service
	Tasks         *task.Service
	Members       *member.Service
	Chat          *chat.Service
	Comments      *comment.Service
	Notifications *notify.Service
	Activity      *activity.Service
	Assignments   *assign.Service
	Webhook       *github.WebhookService
	Links         *github.LinkService
	Search        *search.Service
	Reports       *report.Service
	Registry      *realtime.Registry
}

type HTTPServer struct {
	svc        Services
	corsOrigin string
}

func NewHTTPServer(svc Services, corsOrigin string) *HTTPServer {
	return &HTTPServer{svc: svc, corsOrigin: corsOrigin}
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

		if err := s.svc.Store.Ping(ctx); err != nil {
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

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleSignUp(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleSignIn(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		pair, session, err := s.svc.Sessions.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"accessToken":  pair.Token,
			"refreshToken": pair.RefreshToken,
			"userId":       session.UserID,
			"userName":     session.UserName,
			"expiresAt":    pair.ExpiresAt.Unix(),
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.svc.Sessions.Logout(r.Context(), body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/webhooks/github" {
		s.handleGitHubWebhook(w, r)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userId":        session.UserID,
			"userName":      session.UserName,
			"online":        s.svc.Registry.OnlineCount(),
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/events" {
		realtime.ServeSSE(w, r, s.svc.Registry, session.UserID)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r)
		return
	}

	if r.URL.Path == "/api/projects" {
		switch r.Method {
		case http.MethodGet:
			items, err := s.svc.Projects.ListByUser(r.Context(), session.UserID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list projects", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"projects": items})
		case http.MethodPost:
			s.handleCreateProject(w, r, session)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/invites" {
		items, err := s.svc.Members.ListInvites(r.Context(), session.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list invites", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"invites": items})
		return
	}

	if r.URL.Path == "/api/tasks" {
		switch r.Method {
		case http.MethodGet:
			s.handleListTasks(w, r, session)
		case http.MethodPost:
			s.handleCreateTask(w, r, session)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if r.URL.Path == "/api/channels" {
		switch r.Method {
		case http.MethodGet:
			projectID, _ := strconv.ParseInt(r.URL.Query().Get("projectId"), 10, 64)
			items, err := s.svc.Chat.ChannelsByUser(r.Context(), session.UserID, projectID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list channels", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"channels": items})
		case http.MethodPost:
			s.handleCreateChannel(w, r, session)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if strings.HasPrefix(r.URL.Path, "/api/notifications") {
		s.handleNotifications(w, r, session)
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "projects" {
		projectID, err := parseID(parts[2])
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "project id must be an integer", nil)
			return
		}
		s.handleProject(w, r, session, projectID, parts[3:])
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "tasks" {
		taskID, err := parseID(parts[2])
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "task id must be an integer", nil)
			return
		}
		s.handleTask(w, r, session, taskID, parts[3:])
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "channels" {
		channelID, err := parseID(parts[2])
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "channel id must be an integer", nil)
			return
		}
		s.handleChannel(w, r, session, channelID, parts[3:])
		return
	}

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "members" && r.Method == http.MethodDelete {
		memberID, err := parseID(parts[2])
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "member id must be an integer", nil)
			return
		}
		removed, err := s.svc.Members.Remove(r.Context(), memberID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		if !removed {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Member not found", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "comments" {
		commentID, err := parseID(parts[2])
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "comment id must be an integer", nil)
			return
		}
		s.handleComment(w, r, session, commentID)
		return
	}

	if len(parts) == 4 && parts[0] == "api" && parts[1] == "invites" && r.Method == http.MethodPost {
		memberID, err := parseID(parts[2])
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invite id must be an integer", nil)
			return
		}
		var m *store.ProjectMember
		switch parts[3] {
		case "accept":
			m, err = s.svc.Members.AcceptInvite(r.Context(), memberID, session.UserID)
		case "decline":
			m, err = s.svc.Members.DeclineInvite(r.Context(), memberID, session.UserID)
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		if m == nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Invite not found", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"member": m})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// Auth handlers

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	user, err := s.svc.Accounts.SignUp(r.Context(), account.SignUpRequest{
		Name:     body.Name,
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		if errors.Is(err, account.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "SIGNUP_FAILED", err.Error(), nil)
		return
	}

	pair, err := s.svc.Sessions.Create(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SESSION_FAILED", "Failed to create session", nil)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"accessToken":  pair.Token,
		"refreshToken": pair.RefreshToken,
		"userId":       user.ID,
		"userName":     user.Name,
		"expiresAt":    pair.ExpiresAt.Unix(),
	})
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	user, err := s.svc.Accounts.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
		return
	}

	pair, err := s.svc.Sessions.Create(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SESSION_FAILED", "Failed to create session", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken":  pair.Token,
		"refreshToken": pair.RefreshToken,
		"userId":       user.ID,
		"userName":     user.Name,
		"expiresAt":    pair.ExpiresAt.Unix(),
	})
}

// Webhook handler

func (s *HTTPServer) handleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Could not read body", nil)
		return
	}
	defer r.Body.Close()

	if err := s.svc.Webhook.VerifySignature(r.Header.Get("X-Hub-Signature-256"), body); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_SIGNATURE", "Signature verification failed", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	result, err := s.svc.Webhook.ProcessEvent(ctx, r.Header.Get("X-GitHub-Event"), body)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Search handler

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := search.Query{
		Text:            strings.TrimSpace(r.URL.Query().Get("q")),
		FilterType:      search.ResultType(strings.TrimSpace(r.URL.Query().Get("type"))),
		FilterProjectID: strings.TrimSpace(r.URL.Query().Get("projectId")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		q.Limit = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
			return
		}
		q.Offset = parsed
	}
	writeJSON(w, http.StatusOK, s.svc.Search.Search(q))
}

// Project handlers

func (s *HTTPServer) handleCreateProject(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Status      string  `json:"status"`
		StartDate   *string `json:"startDate"`
		EndDate     *string `json:"endDate"`
		Invitees    []struct {
			UserID int64  `json:"userId"`
			Role   string `json:"role"`
		} `json:"invitees"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
		return
	}

	p := store.Project{
		Name:        body.Name,
		Description: body.Description,
		Status:      body.Status,
		CreatedBy:   session.UserID,
	}
	var err error
	if p.StartDate, err = parseDate(body.StartDate); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "startDate must be YYYY-MM-DD", nil)
		return
	}
	if p.EndDate, err = parseDate(body.EndDate); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "endDate must be YYYY-MM-DD", nil)
		return
	}

	invitees := make([]project.Invitee, 0, len(body.Invitees))
	for _, inv := range body.Invitees {
		invitees = append(invitees, project.Invitee{UserID: inv.UserID, Role: inv.Role})
	}

	created, err := s.svc.Projects.Create(r.Context(), p, invitees)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"project": created})
}

func (s *HTTPServer) handleProject(w http.ResponseWriter, r *http.Request, session Session, projectID int64, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			p, err := s.svc.Projects.Get(r.Context(), projectID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"project": p})
		case http.MethodPut:
			s.handleUpdateProject(w, r, session, projectID)
		case http.MethodDelete:
			if err := s.svc.Projects.Delete(r.Context(), projectID, session.UserID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	switch rest[0] {
	case "report":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		if len(rest) == 2 && rest[1] == "pdf" {
			result, err := s.svc.Reports.ExportPDF(r.Context(), projectID)
			if err != nil {
				if errors.Is(err, report.ErrPDFDependencyMissing) {
					writeError(w, http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available", nil)
					return
				}
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			w.Header().Set("Content-Type", result.MimeType)
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(result.Data)
			return
		}
		rep, err := s.svc.Projects.Report(r.Context(), projectID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, rep)
		return

	case "members":
		switch r.Method {
		case http.MethodGet:
			items, err := s.svc.Members.ListMembers(r.Context(), projectID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list members", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"members": items})
		case http.MethodPost:
			var body struct {
				UserID int64  `json:"userId"`
				Role   string `json:"role"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if body.UserID == 0 {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "userId is required", nil)
				return
			}
			m, skipped, err := s.svc.Members.Invite(r.Context(), nil, store.ProjectMember{
				ProjectID: projectID,
				UserID:    body.UserID,
				Role:      body.Role,
				InvitedBy: session.UserID,
			})
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"member": m, "skipped": skipped})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return

	case "github":
		s.handleProjectGitHub(w, r, projectID, rest[1:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleUpdateProject(w http.ResponseWriter, r *http.Request, session Session, projectID int64) {
	var body struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Status      string  `json:"status"`
		StartDate   *string `json:"startDate"`
		EndDate     *string `json:"endDate"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	startDate, err := parseNullDate(body.StartDate)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "startDate must be YYYY-MM-DD", nil)
		return
	}
	endDate, err := parseNullDate(body.EndDate)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "endDate must be YYYY-MM-DD", nil)
		return
	}

	p, err := s.svc.Projects.Update(r.Context(), projectID, session.UserID, body.Name, body.Description, body.Status, startDate, endDate)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"project": p})
}

func (s *HTTPServer) handleProjectGitHub(w http.ResponseWriter, r *http.Request, projectID int64, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			installation, err := s.svc.Links.Installation(r.Context(), projectID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			repos, err := s.svc.Links.Repositories(r.Context(), projectID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"installation": installation, "repositories": repos})
		case http.MethodPost:
			var body struct {
				InstallationID int64  `json:"installationId"`
				AccountLogin   string `json:"accountLogin"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if body.InstallationID == 0 {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "installationId is required", nil)
				return
			}
			if err := s.svc.Links.Link(r.Context(), projectID, body.InstallationID, body.AccountLogin); err != nil {
				if errors.Is(err, github.ErrAlreadyLinked) {
					writeError(w, http.StatusConflict, "ALREADY_LINKED", "Project is already linked to an installation", nil)
					return
				}
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
		case http.MethodDelete:
			if err := s.svc.Links.Unlink(r.Context(), projectID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if rest[0] == "repositories" && r.Method == http.MethodPut {
		var body struct {
			Repositories []struct {
				RepoID   int64  `json:"repoId"`
				FullName string `json:"fullName"`
			} `json:"repositories"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		repos := make([]store.Repository, 0, len(body.Repositories))
		for _, repo := range body.Repositories {
			repos = append(repos, store.Repository{RepoID: repo.RepoID, FullName: repo.FullName})
		}
		if err := s.svc.Links.SaveRepositories(r.Context(), projectID, repos); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"repositories": repos})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// Task handlers

func (s *HTTPServer) handleListTasks(w http.ResponseWriter, r *http.Request, session Session) {
	if r.URL.Query().Get("assignedToMe") == "true" {
		items, err := s.svc.Tasks.ListByAssignee(r.Context(), session.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list tasks", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tasks": items})
		return
	}

	filter := store.TaskFilter{
		Status: strings.TrimSpace(r.URL.Query().Get("status")),
		Title:  strings.TrimSpace(r.URL.Query().Get("title")),
	}
	filter.ProjectID, _ = strconv.ParseInt(r.URL.Query().Get("projectId"), 10, 64)

	items, err := s.svc.Tasks.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list tasks", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": items})
}

func (s *HTTPServer) handleCreateTask(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		ProjectID   int64   `json:"projectId"`
		Title       string  `json:"title"`
		Description string  `json:"description"`
		Status      string  `json:"status"`
		Priority    string  `json:"priority"`
		StartDate   *string `json:"startDate"`
		DueDate     *string `json:"dueDate"`
		Assignees   []int64 `json:"assignees"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.ProjectID == 0 || strings.TrimSpace(body.Title) == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "projectId and title are required", nil)
		return
	}

	t := store.Task{
		ProjectID:   body.ProjectID,
		Title:       body.Title,
		Description: body.Description,
		Status:      body.Status,
		Priority:    body.Priority,
		CreatedBy:   session.UserID,
	}
	var err error
	if t.StartDate, err = parseDate(body.StartDate); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "startDate must be YYYY-MM-DD", nil)
		return
	}
	if t.DueDate, err = parseDate(body.DueDate); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "dueDate must be YYYY-MM-DD", nil)
		return
	}

	created, err := s.svc.Tasks.Create(r.Context(), t, body.Assignees)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	s.svc.Search.IndexTask(taskRecord(created))
	writeJSON(w, http.StatusCreated, map[string]any{"task": created})
}

func (s *HTTPServer) handleTask(w http.ResponseWriter, r *http.Request, session Session, taskID int64, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			t, err := s.svc.Tasks.Get(r.Context(), taskID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			if t == nil {
				writeError(w, http.StatusNotFound, "NOT_FOUND", "Task not found", nil)
				return
			}
			assignees, err := s.svc.Assignments.Assignees(r.Context(), taskID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not load assignees", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"task": t, "assignees": assignees})
		case http.MethodPut:
			s.handleUpdateTask(w, r, session, taskID)
		case http.MethodDelete:
			deleted, err := s.svc.Tasks.Delete(r.Context(), taskID, session.UserID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			s.svc.Search.DeleteTask(strconv.FormatInt(taskID, 10))
			writeJSON(w, http.StatusOK, map[string]any{"task": deleted})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	switch rest[0] {
	case "assignees":
		switch r.Method {
		case http.MethodPost:
			var body struct {
				UserID int64 `json:"userId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if body.UserID == 0 {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "userId is required", nil)
				return
			}
			t, err := s.svc.Tasks.Get(r.Context(), taskID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			if t == nil {
				writeError(w, http.StatusNotFound, "NOT_FOUND", "Task not found", nil)
				return
			}
			assignment, err := s.svc.Assignments.Create(r.Context(), nil, assign.Request{
				ProjectID: t.ProjectID,
				TaskID:    taskID,
				UserID:    body.UserID,
				ActorID:   session.UserID,
			})
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"assignment": assignment})
		case http.MethodDelete:
			cleared, err := s.svc.Tasks.ClearAssignees(r.Context(), taskID, session.UserID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"cleared": cleared})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return

	case "progress":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		var body struct {
			Value float64 `json:"value"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		value, err := s.svc.Tasks.LogProgress(r.Context(), taskID, session.UserID, body.Value)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"progress": value})
		return

	case "activity":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		items, err := s.svc.Activity.List(r.Context(), taskID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list activity", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"activity": items})
		return

	case "role":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		role, err := s.svc.Tasks.Role(r.Context(), taskID, session.UserID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, role)
		return

	case "comments":
		switch r.Method {
		case http.MethodGet:
			items, err := s.svc.Comments.ListByTask(r.Context(), taskID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list comments", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"comments": items})
		case http.MethodPost:
			var body struct {
				Content string `json:"content"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if strings.TrimSpace(body.Content) == "" {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
				return
			}
			c, err := s.svc.Comments.Add(r.Context(), nil, store.Comment{
				TaskID:  taskID,
				UserID:  session.UserID,
				Content: body.Content,
			})
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			if c == nil {
				writeError(w, http.StatusNotFound, "NOT_FOUND", "Task not found", nil)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"comment": c})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleComment(w http.ResponseWriter, r *http.Request, session Session, commentID int64) {
	switch r.Method {
	case http.MethodPut:
		var body struct {
			Content string `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if strings.TrimSpace(body.Content) == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
			return
		}
		c, err := s.svc.Comments.Update(r.Context(), commentID, session.UserID, body.Content)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		if c == nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Comment not found", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"comment": c})
	case http.MethodDelete:
		deleted, err := s.svc.Comments.Delete(r.Context(), commentID, session.UserID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		if !deleted {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Comment not found", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleUpdateTask(w http.ResponseWriter, r *http.Request, session Session, taskID int64) {
	var body struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Status      *string `json:"status"`
		Priority    *string `json:"priority"`
		StartDate   *string `json:"startDate"`
		DueDate     *string `json:"dueDate"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	update := store.TaskUpdate{
		Title:       body.Title,
		Description: body.Description,
		Status:      body.Status,
		Priority:    body.Priority,
	}
	changed := make([]string, 0, 6)
	if body.Title != nil {
		changed = append(changed, "title")
	}
	if body.Description != nil {
		changed = append(changed, "description")
	}
	if body.Status != nil {
		changed = append(changed, "status")
	}
	if body.Priority != nil {
		changed = append(changed, "priority")
	}
	if body.StartDate != nil {
		parsed, err := parseDate(body.StartDate)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "startDate must be YYYY-MM-DD", nil)
			return
		}
		update.StartDate = parsed
		changed = append(changed, "start_date")
	}
	if body.DueDate != nil {
		parsed, err := parseDate(body.DueDate)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "dueDate must be YYYY-MM-DD", nil)
			return
		}
		update.DueDate = parsed
		changed = append(changed, "due_date")
	}
	if len(changed) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "nothing to update", nil)
		return
	}

	if err := s.svc.Tasks.Update(r.Context(), taskID, session.UserID, update, changed); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	t, err := s.svc.Tasks.Get(r.Context(), taskID)
	if err != nil || t == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	s.svc.Search.IndexTask(taskRecord(*t))
	writeJSON(w, http.StatusOK, map[string]any{"task": t})
}

// Channel handlers

func (s *HTTPServer) handleCreateChannel(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		ProjectID   int64   `json:"projectId"`
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Members     []int64 `json:"members"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.ProjectID == 0 || strings.TrimSpace(body.Name) == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "projectId and name are required", nil)
		return
	}

	channel, err := s.svc.Chat.CreateChannel(r.Context(), store.ChatChannel{
		ProjectID:   body.ProjectID,
		Name:        body.Name,
		Description: body.Description,
		CreatedBy:   session.UserID,
	}, body.Members)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"channel": channel})
}

func (s *HTTPServer) handleChannel(w http.ResponseWriter, r *http.Request, session Session, channelID int64, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			channel, err := s.svc.Chat.GetChannel(r.Context(), channelID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			if channel == nil {
				writeError(w, http.StatusNotFound, "NOT_FOUND", "Channel not found", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"channel": channel})
		case http.MethodPut:
			var body struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			channel, err := s.svc.Chat.UpdateChannel(r.Context(), channelID, body.Name, body.Description)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"channel": channel})
		case http.MethodDelete:
			if err := s.svc.Chat.DeleteChannel(r.Context(), channelID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	switch rest[0] {
	case "members":
		switch {
		case r.Method == http.MethodGet:
			items, err := s.svc.Chat.Members(r.Context(), channelID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list members", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"members": items})
		case r.Method == http.MethodPost:
			var body struct {
				UserID int64 `json:"userId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if err := s.svc.Chat.AddMember(r.Context(), channelID, body.UserID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
		case r.Method == http.MethodDelete && len(rest) == 2:
			userID, err := parseID(rest[1])
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "user id must be an integer", nil)
				return
			}
			if err := s.svc.Chat.RemoveMember(r.Context(), channelID, userID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return

	case "messages":
		switch r.Method {
		case http.MethodGet:
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
			items, err := s.svc.Chat.Messages(r.Context(), channelID, limit, offset)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"messages": items})
		case http.MethodPost:
			s.handlePostMessage(w, r, session, channelID)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handlePostMessage(w http.ResponseWriter, r *http.Request, session Session, channelID int64) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var msg *store.ChatMessage
	var err error

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "Could not parse multipart form", nil)
			return
		}
		content := r.FormValue("content")

		var uploads []files.Upload
		var open []io.Closer
		defer func() {
			for _, c := range open {
				_ = c.Close()
			}
		}()
		for _, fh := range r.MultipartForm.File["files"] {
			f, err := fh.Open()
			if err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", "Could not read uploaded file", nil)
				return
			}
			open = append(open, f)
			uploads = append(uploads, files.Upload{
				FileName: fh.Filename,
				FileType: fh.Header.Get("Content-Type"),
				Size:     fh.Size,
				Content:  f,
			})
		}

		msg, err = s.svc.Chat.AddMessageWithFiles(r.Context(), channelID, session.UserID, content, uploads)
	} else {
		var body struct {
			Content string `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		msg, err = s.svc.Chat.AddMessage(r.Context(), channelID, session.UserID, body.Content)
	}

	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	if channel, err := s.svc.Chat.GetChannel(r.Context(), channelID); err == nil && channel != nil {
		s.svc.Search.IndexMessage(search.MessageRecord{
			ID:         strconv.FormatInt(msg.ID, 10),
			Content:    msg.Content,
			ChannelID:  strconv.FormatInt(msg.ChannelID, 10),
			ProjectID:  strconv.FormatInt(channel.ProjectID, 10),
			SenderName: msg.SenderName,
		})
	}

	writeJSON(w, http.StatusCreated, map[string]any{"message": msg})
}

// Notification handlers

func (s *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request, session Session) {
	parts := splitPath(r.URL.Path)
	rest := parts[2:]

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			items, err := s.svc.Notifications.List(r.Context(), store.NotificationFilter{
				RecipientID: session.UserID,
				Type:        strings.TrimSpace(r.URL.Query().Get("type")),
				Status:      strings.TrimSpace(r.URL.Query().Get("status")),
			})
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list notifications", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"notifications": items})
		case http.MethodDelete:
			if err := s.svc.Notifications.DeleteAll(r.Context(), session.UserID); err != nil {
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not delete notifications", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) == 1 {
		switch {
		case rest[0] == "new-count" && r.Method == http.MethodGet:
			count, err := s.svc.Notifications.NewCount(r.Context(), session.UserID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not count notifications", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"count": count})
			return
		case rest[0] == "read-all" && r.Method == http.MethodPut:
			updated, err := s.svc.Notifications.MarkAllRead(r.Context(), session.UserID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not update notifications", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
			return
		case rest[0] == "seen" && r.Method == http.MethodPut:
			updated, err := s.svc.Notifications.MarkNewUnread(r.Context(), session.UserID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not update notifications", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
			return
		}

		notificationID, err := parseID(rest[0])
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "notification id must be an integer", nil)
			return
		}
		switch r.Method {
		case http.MethodGet:
			n, err := s.svc.Notifications.Get(r.Context(), notificationID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			if n == nil {
				writeError(w, http.StatusNotFound, "NOT_FOUND", "Notification not found", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"notification": n})
		case http.MethodDelete:
			deleted, err := s.svc.Notifications.Delete(r.Context(), notificationID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			if !deleted {
				writeError(w, http.StatusNotFound, "NOT_FOUND", "Notification not found", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) == 2 {
		notificationID, err := parseID(rest[0])
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "notification id must be an integer", nil)
			return
		}
		switch {
		case rest[1] == "read" && r.Method == http.MethodPut:
			n, err := s.svc.Notifications.MarkRead(r.Context(), notificationID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			if n == nil {
				writeError(w, http.StatusNotFound, "NOT_FOUND", "Notification not found", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"notification": n})
			return
		case rest[1] == "restore" && r.Method == http.MethodPost:
			restored, err := s.svc.Notifications.Restore(r.Context(), notificationID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			if !restored {
				writeError(w, http.StatusNotFound, "NOT_FOUND", "Notification not found", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// Plumbing

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		// EventSource clients cannot set headers.
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.svc.Sessions.FromToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)

		next.ServeHTTP(writer, r)

		log.Printf(`{"method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush forwards to the wrapped writer so SSE streaming works through
// the middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
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
		if errors.Is(err, http.ErrBodyReadAfterClose) {
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

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}

func parseDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", strings.TrimSpace(*raw))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseNullDate(raw *string) (*sql.NullTime, error) {
	if raw == nil {
		return nil, nil
	}
	if strings.TrimSpace(*raw) == "" {
		return &sql.NullTime{}, nil
	}
	t, err := time.Parse("2006-01-02", strings.TrimSpace(*raw))
	if err != nil {
		return nil, err
	}
	return &sql.NullTime{Time: t, Valid: true}, nil
}

func taskRecord(t store.Task) search.TaskRecord {
	return search.TaskRecord{
		ID:          strconv.FormatInt(t.ID, 10),
		Title:       t.Title,
		Description: t.Description,
		ProjectID:   strconv.FormatInt(t.ProjectID, 10),
		Status:      t.Status,
		Priority:    t.Priority,
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

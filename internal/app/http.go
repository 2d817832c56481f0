package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"organaizer/api/internal/auth"
	"organaizer/api/internal/authpw"
	"organaizer/api/internal/store"
	"organaizer/api/internal/upload"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
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

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleAuthSignUp(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleAuthSignIn(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userName":      session.UserName,
			"userId":        session.UserID,
			"email":         session.Email,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/login" {
		s.handleDevLogin(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		s.handleRefresh(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		s.handleLogout(w, r)
		return
	}

	// Everything below requires a valid session.
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case parts[1] == "entries" && len(parts) == 2:
		switch r.Method {
		case http.MethodGet:
			s.handleListEntries(w, r)
		case http.MethodPost:
			s.handleCreateEntry(w, r, session)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}

	case parts[1] == "entries" && len(parts) == 3 && parts[2] == "reorder" && r.Method == http.MethodPost:
		s.handleReorder(w, r)

	case parts[1] == "entries" && len(parts) == 3 && parts[2] == "ordered" && r.Method == http.MethodGet:
		s.handleOrderedEntries(w, r)

	case parts[1] == "entries" && len(parts) == 3 && parts[2] == "search" && r.Method == http.MethodGet:
		s.handleSearch(w, r)

	case parts[1] == "entries" && len(parts) == 3 && parts[2] == "vote" && r.Method == http.MethodPost:
		s.handleFlatVote(w, r, session)

	case parts[1] == "entries" && len(parts) == 3 && parts[2] == "rate" && r.Method == http.MethodPost:
		s.handleFlatRate(w, r, session)

	case parts[1] == "entries" && len(parts) == 3 && parts[2] == "upload" && r.Method == http.MethodPost:
		s.handleUpload(w, r)

	case parts[1] == "entries" && len(parts) == 3:
		switch r.Method {
		case http.MethodGet:
			s.handleGetEntry(w, r, parts[2])
		case http.MethodPut, http.MethodPatch:
			s.handleUpdateEntry(w, r, parts[2])
		case http.MethodDelete:
			s.handleDeleteEntry(w, r, parts[2])
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}

	case parts[1] == "entries" && len(parts) == 4 && parts[3] == "vote" && r.Method == http.MethodPost:
		s.handleVote(w, r, parts[2], session)

	case parts[1] == "entries" && len(parts) == 4 && parts[3] == "rating" && r.Method == http.MethodPost:
		s.handleRate(w, r, parts[2], session)

	case parts[1] == "entries" && len(parts) == 4 && parts[3] == "relations" && r.Method == http.MethodGet:
		s.handleEntryRelations(w, r, parts[2])

	case parts[1] == "search" && len(parts) == 2 && r.Method == http.MethodGet:
		s.handleSearch(w, r)

	case parts[1] == "labels" && len(parts) == 2 && r.Method == http.MethodGet:
		s.handleListLabels(w, r)

	case parts[1] == "assemblies" && len(parts) == 2:
		switch r.Method {
		case http.MethodGet:
			s.handleListAssemblies(w, r)
		case http.MethodPost:
			s.handleCreateAssembly(w, r, session)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}

	case parts[1] == "assemblies" && len(parts) == 3:
		switch r.Method {
		case http.MethodGet:
			s.handleGetAssembly(w, r, parts[2])
		case http.MethodPut, http.MethodPatch:
			s.handleUpdateAssembly(w, r, parts[2])
		case http.MethodDelete:
			s.handleDeleteAssembly(w, r, parts[2])
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}

	case parts[1] == "assemblies" && len(parts) == 4 && parts[3] == "entries" && r.Method == http.MethodGet:
		s.handleAssemblyEntries(w, r, parts[2])

	case parts[1] == "reports" && len(parts) == 3 && parts[2] == "generate" && r.Method == http.MethodPost:
		s.handleGenerateReport(w, r, session)

	case parts[1] == "reports" && len(parts) == 4 && parts[2] == "download" && r.Method == http.MethodGet:
		s.handleDownloadReport(w, r, parts[3])

	case parts[1] == "uploads" && len(parts) == 2 && r.Method == http.MethodPost:
		s.handleUpload(w, r)

	case parts[1] == "uploads" && len(parts) > 2 && r.Method == http.MethodGet:
		s.handleServeUpload(w, r, strings.Join(parts[2:], "/"))

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		if strings.Contains(err.Error(), "already registered") {
			writeError(w, http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
			return
		}
		var domainErr *DomainError
		if errors.As(err, &domainErr) {
			writeError(w, domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details)
			return
		}
		writeError(w, http.StatusBadRequest, "SIGNUP_FAILED", err.Error(), nil)
		return
	}
	writeSession(w, http.StatusCreated, session)
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeSession(w, http.StatusOK, session)
}

func (s *HTTPServer) handleDevLogin(w http.ResponseWriter, r *http.Request) {
	session, err := s.service.Login(r.Context())
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeSession(w, http.StatusOK, session)
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "refreshToken is required", nil)
		return
	}

	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "INVALID_REFRESH", "Refresh token is invalid or expired", nil)
			return
		}
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeSession(w, http.StatusOK, session)
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.Logout(r.Context(), body.RefreshToken); err != nil && !errors.Is(err, store.ErrNotFound) {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleListEntries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	items, err := s.service.FilteredEntries(r.Context(), query.Get("type"), query.Get("status"), query.Get("search"), limit, offset)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": items})
}

func (s *HTTPServer) handleOrderedEntries(w http.ResponseWriter, r *http.Request) {
	payload, err := s.service.OrderedEntries(r.Context(), r.URL.Query().Get("assemblyFilter"))
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleFlatVote(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Key   string `json:"key"`
		Value int    `json:"value"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	payload, err := s.service.Vote(r.Context(), body.Key, session.UserID, body.Value)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleFlatRate(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Key    string  `json:"key"`
		Rating float64 `json:"rating"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	payload, err := s.service.Rate(r.Context(), body.Key, session.UserID, body.Rating)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleCreateEntry(w http.ResponseWriter, r *http.Request, session Session) {
	var body EntryInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	payload, err := s.service.CreateEntry(r.Context(), body, session.UserID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *HTTPServer) handleGetEntry(w http.ResponseWriter, r *http.Request, key string) {
	payload, err := s.service.GetEntry(r.Context(), key)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleUpdateEntry(w http.ResponseWriter, r *http.Request, key string) {
	var body EntryUpdateInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	payload, err := s.service.UpdateEntry(r.Context(), key, body)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleDeleteEntry(w http.ResponseWriter, r *http.Request, key string) {
	if err := s.service.DeleteEntry(r.Context(), key); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleVote(w http.ResponseWriter, r *http.Request, key string, session Session) {
	var body struct {
		Value int `json:"value"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	payload, err := s.service.Vote(r.Context(), key, session.UserID, body.Value)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleRate(w http.ResponseWriter, r *http.Request, key string, session Session) {
	var body struct {
		Rating float64 `json:"rating"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	payload, err := s.service.Rate(r.Context(), key, session.UserID, body.Rating)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleEntryRelations(w http.ResponseWriter, r *http.Request, key string) {
	payload, err := s.service.GetEntry(r.Context(), key)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "relations": payload["relations"]})
}

func (s *HTTPServer) handleReorder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EntryKey string        `json:"entryKey"`
		NewRank  *float64      `json:"newRank"`
		Filter   *ReorderScope `json:"assemblyFilter"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if strings.TrimSpace(body.EntryKey) == "" {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "entryKey is required", nil)
		return
	}
	// newRank decodes through a pointer so an absent field is
	// distinguishable from an explicit rank 0.
	if body.NewRank == nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "newRank is required and must be a number", nil)
		return
	}
	payload, err := s.service.Reorder(r.Context(), body.EntryKey, *body.NewRank, body.Filter)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	response, err := s.service.Search(r.Context(), query.Get("q"), query.Get("type"), query.Get("status"), limit, offset)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleListLabels(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListLabels(r.Context())
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"labels": items})
}

func (s *HTTPServer) handleListAssemblies(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListAssemblies(r.Context())
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assemblies": items})
}

func (s *HTTPServer) handleCreateAssembly(w http.ResponseWriter, r *http.Request, session Session) {
	var body AssemblyInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	payload, err := s.service.CreateAssembly(r.Context(), body, session.UserID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *HTTPServer) handleGetAssembly(w http.ResponseWriter, r *http.Request, assemblyID string) {
	payload, err := s.service.GetAssembly(r.Context(), assemblyID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleUpdateAssembly(w http.ResponseWriter, r *http.Request, assemblyID string) {
	var body AssemblyInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	payload, err := s.service.UpdateAssembly(r.Context(), assemblyID, body)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleDeleteAssembly(w http.ResponseWriter, r *http.Request, assemblyID string) {
	if err := s.service.DeleteAssembly(r.Context(), assemblyID); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleAssemblyEntries(w http.ResponseWriter, r *http.Request, assemblyID string) {
	payload, err := s.service.AssemblyEntries(r.Context(), assemblyID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleGenerateReport(w http.ResponseWriter, r *http.Request, session Session) {
	var body ReportRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.GenerateReport(r.Context(), body, session.UserName)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"filename":    result.Filename,
		"mimeType":    result.MimeType,
		"size":        result.Size,
		"createdAt":   result.CreatedAt,
		"downloadUrl": "/api/reports/download/" + result.Filename,
	})
}

func (s *HTTPServer) handleDownloadReport(w http.ResponseWriter, r *http.Request, filename string) {
	path, err := s.service.ResolveReport(filename)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, path)
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	uploads := s.service.Uploads()
	if uploads == nil {
		writeError(w, http.StatusServiceUnavailable, "UPLOADS_UNAVAILABLE", "Upload storage not configured", nil)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "expected multipart form upload", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "missing file field", nil)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	object, err := uploads.Put(r.Context(), header.Filename, contentType, header.Size, file)
	if err != nil {
		if errors.Is(err, upload.ErrUnsupportedType) {
			writeError(w, http.StatusUnprocessableEntity, "UNSUPPORTED_TYPE", "Only image uploads are supported", nil)
			return
		}
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"key":         object.Key,
		"contentType": object.ContentType,
		"size":        object.Size,
		"url":         object.URL,
	})
}

func (s *HTTPServer) handleServeUpload(w http.ResponseWriter, r *http.Request, key string) {
	uploads := s.service.Uploads()
	if uploads == nil {
		writeError(w, http.StatusServiceUnavailable, "UPLOADS_UNAVAILABLE", "Upload storage not configured", nil)
		return
	}
	reader, object, err := uploads.Get(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	defer reader.Close()
	w.Header().Set("Content-Type", object.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(object.Size, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

func writeSession(w http.ResponseWriter, status int, session Session) {
	writeJSON(w, status, map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"email":        session.Email,
		"expiresAt":    session.ExpiresAt.Unix(),
	})
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

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

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
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
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

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"trailmap/api/internal/images"
	"trailmap/api/internal/metadata"
)

const maxBodyBytes = 1 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
	metadata   *metadata.Client
	images     *images.Store
}

func NewHTTPServer(service *Service, corsOrigin string, meta *metadata.Client, imgs *images.Store) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, metadata: meta, images: imgs}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/ready" {
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

	if r.Method == http.MethodGet && r.URL.Path == "/items" {
		writeJSON(w, http.StatusOK, map[string]any{"items": s.service.Catalog().All()})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/collections" {
		writeJSON(w, http.StatusOK, map[string]any{"collections": s.service.Catalog().Collections()})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/locations" {
		s.handleLocations(w, r, 0)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/locations/latest" {
		s.handleLocations(w, r, 100)
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) == 2 && parts[0] == "items" && parts[1] == "random" && r.Method == http.MethodGet {
		item, err := s.service.Catalog().Random()
		if err != nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "catalog is empty", nil)
			return
		}
		if !s.issueCredential(w, r) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": item})
		return
	}

	if len(parts) == 2 && parts[0] == "items" {
		itemID := parts[1]
		switch r.Method {
		case http.MethodGet:
			s.handleGetItem(w, r, itemID)
		case http.MethodPost:
			s.handleSubmit(w, r, itemID)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 3 && parts[0] == "items" && parts[2] == "metadata" && r.Method == http.MethodGet {
		s.handleMetadata(w, r, parts[1])
		return
	}

	if len(parts) == 2 && parts[0] == "images" && r.Method == http.MethodGet {
		s.handleImage(w, r, parts[1])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleGetItem(w http.ResponseWriter, r *http.Request, itemID string) {
	item, err := s.service.Catalog().Get(itemID)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown item", nil)
		return
	}
	if !s.issueCredential(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request, itemID string) {
	credential := bearerToken(r)
	if credential == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "credential required", nil)
		return
	}
	session, err := s.service.SessionFromCredential(credential)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credential", nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "could not read request body", nil)
		return
	}
	defer r.Body.Close()

	client := ClientInfo{
		Address:   clientAddress(r),
		UserAgent: r.UserAgent(),
	}
	rec, err := s.service.SubmitStep(r.Context(), itemID, session, body, client)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	w.Header().Set("Authorization", "Bearer "+credential)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "record": rec})
}

func (s *HTTPServer) handleLocations(w http.ResponseWriter, r *http.Request, limit int) {
	payload, err := s.service.Locations(r.Context(), limit)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleMetadata(w http.ResponseWriter, r *http.Request, itemID string) {
	if s.metadata == nil {
		writeError(w, http.StatusServiceUnavailable, "METADATA_UNAVAILABLE", "metadata service not configured", nil)
		return
	}
	if _, err := s.service.Catalog().Get(itemID); err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown item", nil)
		return
	}
	body, err := s.metadata.Fetch(r.Context(), itemID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "METADATA_FAILED", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *HTTPServer) handleImage(w http.ResponseWriter, r *http.Request, imageID string) {
	if s.images == nil {
		writeError(w, http.StatusServiceUnavailable, "IMAGES_UNAVAILABLE", "image store not configured", nil)
		return
	}
	reader, contentType, err := s.images.Open(r.Context(), imageID)
	if err != nil {
		if errors.Is(err, images.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown image", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "STORAGE_ERROR", err.Error(), nil)
		return
	}
	defer reader.Close()
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

// issueCredential echoes the presented credential, or mints one when absent,
// on the Authorization response header so the caller can persist it.
func (s *HTTPServer) issueCredential(w http.ResponseWriter, r *http.Request) bool {
	credential, err := s.service.IssueCredential(bearerToken(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "could not issue credential", nil)
		return false
	}
	w.Header().Set("Authorization", "Bearer "+credential)
	return true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}

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
	header.Set("Access-Control-Expose-Headers", "Authorization")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
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

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func clientAddress(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		if first, _, found := strings.Cut(forwarded, ","); found {
			return strings.TrimSpace(first)
		}
		return forwarded
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
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
	if IsAuthError(err) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

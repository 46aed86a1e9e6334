package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/petal-labs/toolhost/dispatch"
	"github.com/petal-labs/toolhost/tool"
)

type healthResponse struct {
	Status      string `json:"status"`
	Environment string `json:"environment"`
	Tools       int    `json:"tools"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", Environment: "valid"}
	if _, err := s.env.Values(); err != nil {
		resp.Environment = "invalid"
	}
	if s.host != nil {
		resp.Tools = len(s.host.Manifest().Tools)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleManifest(w http.ResponseWriter, _ *http.Request) {
	if s.host == nil {
		writeJSON(w, http.StatusOK, tool.NewManifest())
		return
	}
	writeJSON(w, http.StatusOK, s.host.Manifest())
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	if s.host == nil {
		writeError(w, http.StatusServiceUnavailable, "NO_HOST", "no tool host configured")
		return
	}
	var req tool.CallRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, tool.ErrorCodeInvalidRequest, "name is required")
		return
	}
	req.Meta = withRequestID(r, req.Meta)

	ctx, cancel := s.callContext(r)
	defer cancel()
	writeResponse(w, s.host.HandleToolCall(ctx, req))
}

func (s *Server) handleBridgeManifest(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bridge(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, b.Manifest())
}

func (s *Server) handleBridgeCall(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bridge(w, r)
	if !ok {
		return
	}
	var req tool.CallRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, tool.ErrorCodeInvalidRequest, "name is required")
		return
	}
	req.Meta = withRequestID(r, req.Meta)

	ctx, cancel := s.callContext(r)
	defer cancel()
	writeResponse(w, b.HandleToolCall(ctx, req))
}

func (s *Server) handleBridgeResources(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bridge(w, r)
	if !ok {
		return
	}
	var req tool.ResourceRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	req.Meta = withRequestID(r, req.Meta)

	ctx, cancel := s.callContext(r)
	defer cancel()
	writeResponse(w, b.HandleResources(ctx, req))
}

func (s *Server) bridge(w http.ResponseWriter, r *http.Request) (Bridge, bool) {
	name := strings.ToLower(chi.URLParam(r, "bridge"))
	b, ok := s.bridges[name]
	if !ok {
		writeError(w, http.StatusNotFound, "UNKNOWN_BRIDGE", fmt.Sprintf("unknown bridge %q", name))
		return nil, false
	}
	return b, true
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request, target any) bool {
	err := decodeJSONBody(r, target)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, tool.ErrorCodeInvalidRequest,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return false
	}
	writeError(w, http.StatusBadRequest, tool.ErrorCodeInvalidRequest, fmt.Sprintf("invalid request body: %v", err))
	return false
}

// withRequestID copies the HTTP request ID into meta unless the caller set one.
func withRequestID(r *http.Request, meta map[string]any) map[string]any {
	id := middleware.GetReqID(r.Context())
	if id == "" {
		return meta
	}
	if _, ok := meta[dispatch.MetaRequestID]; ok {
		return meta
	}
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out[dispatch.MetaRequestID] = id
	return out
}

// --- JSON helpers ---

func decodeJSONBody(r *http.Request, target any) error {
	if target == nil {
		return errors.New("decode target is nil")
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// writeResponse writes a tool.Response verbatim.
func writeResponse(w http.ResponseWriter, resp tool.Response) {
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if w.Header().Get(tool.HeaderContentType) == "" {
		w.Header().Set(tool.HeaderContentType, tool.ContentTypeJSON)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotModified {
		return
	}
	_, _ = w.Write(resp.Body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeResponse(w, tool.ErrorResponse(status, tool.NewError(code, message, nil)))
}

package serve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ormasoftchile/gcloud-commander/pkg/diagram"
	"github.com/ormasoftchile/gcloud-commander/pkg/projectinfo"
	"github.com/ormasoftchile/gcloud-commander/pkg/script"
	"github.com/ormasoftchile/gcloud-commander/pkg/scripts"
	"github.com/ormasoftchile/gcloud-commander/pkg/stream"
)

// ExecuteRequest is the body of POST /api/execute. ScriptContent is decoded
// loosely so a non-string value is reported as missing.
type ExecuteRequest struct {
	ScriptContent any               `json:"scriptContent"`
	InputValues   map[string]string `json:"inputValues,omitempty"`
}

// ScriptRequest is the body of script create and update requests.
type ScriptRequest struct {
	Key         string `json:"key,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

// ContentRequest carries raw script content.
type ContentRequest struct {
	Name          string `json:"name,omitempty"`
	ScriptContent string `json:"scriptContent"`
}

// SummarizeRequest is the body of POST /api/summarize.
type SummarizeRequest struct {
	Log string `json:"log"`
}

// SummarizeResponse is the reply of POST /api/summarize.
type SummarizeResponse struct {
	Summary string `json:"summary"`
}

// FlowResponse is the reply of the flow endpoints.
type FlowResponse struct {
	*diagram.Flow
	Mermaid string `json:"mermaid"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	content, ok := req.ScriptContent.(string)
	if !ok || content == "" {
		s.writeError(w, http.StatusBadRequest, "scriptContent is required", "")
		return
	}

	h := w.Header()
	h.Set("Content-Type", stream.ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// The run outlives a disconnected client: commands already dispatched
	// complete and later events are dropped by the encoder.
	ctx := context.WithoutCancel(r.Context())
	enc := stream.NewEncoder(w)
	for ev := range s.engine.Run(ctx, content, req.InputValues) {
		enc.Encode(ev)
	}
	if err := enc.Err(); err != nil {
		s.log.Info("client went away during execution", "error", err)
	}
}

func (s *Server) handleListScripts(w http.ResponseWriter, r *http.Request) {
	list, err := s.scripts.List()
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if list == nil {
		list = []scripts.Script{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetScript(w http.ResponseWriter, r *http.Request) {
	sc, err := s.scripts.Get(r.PathValue("key"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleCreateScript(w http.ResponseWriter, r *http.Request) {
	var req ScriptRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	meta, err := s.scripts.Save(req.Key, req.Name, req.Description, req.Content)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.log.Info("script saved", "key", meta.Key)
	s.writeJSON(w, http.StatusCreated, meta)
}

func (s *Server) handleUpdateScript(w http.ResponseWriter, r *http.Request) {
	var req ScriptRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	key := r.PathValue("key")
	if _, err := s.scripts.Get(key); err != nil {
		s.writeStoreError(w, err)
		return
	}
	meta, err := s.scripts.Rename(key, req.Name, req.Description, req.Content)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.log.Info("script updated", "key", meta.Key, "previous_key", key)
	s.writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleDeleteScript(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := s.scripts.Delete(key); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.log.Info("script deleted", "key", key)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleScriptParameters(w http.ResponseWriter, r *http.Request) {
	sc, err := s.scripts.Get(r.PathValue("key"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, parameters(sc.Content))
}

func (s *Server) handleParameters(w http.ResponseWriter, r *http.Request) {
	var req ContentRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, parameters(req.ScriptContent))
}

func parameters(content string) []script.Parameter {
	params := script.ExtractParameters(content)
	if params == nil {
		params = []script.Parameter{}
	}
	return params
}

func (s *Server) handleScriptFlow(w http.ResponseWriter, r *http.Request) {
	sc, err := s.scripts.Get(r.PathValue("key"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeFlow(w, diagram.Parse(sc.Name, sc.Content))
}

func (s *Server) handleFlow(w http.ResponseWriter, r *http.Request) {
	var req ContentRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	s.writeFlow(w, diagram.Parse(req.Name, req.ScriptContent))
}

func (s *Server) writeFlow(w http.ResponseWriter, f *diagram.Flow) {
	mermaid, err := diagram.Generate(f, diagram.FormatMermaid)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Could not render flow", err.Error())
		return
	}
	if f.Nodes == nil {
		f.Nodes = []diagram.Node{}
	}
	s.writeJSON(w, http.StatusOK, FlowResponse{Flow: f, Mermaid: mermaid})
}

// handleSummarize never fails because of the language model: problems are
// reported through the summarizer's fallback texts.
func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req SummarizeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	summary := s.summarizer.Summarize(r.Context(), req.Log)
	s.writeJSON(w, http.StatusOK, SummarizeResponse{Summary: summary})
}

func (s *Server) handleProjectInfo(w http.ResponseWriter, r *http.Request) {
	if s.projects == nil {
		s.writeError(w, http.StatusNotImplemented, "Project info is not available with this backend", "")
		return
	}
	project := strings.TrimSpace(r.PathValue("project"))
	if project == "" {
		s.writeError(w, http.StatusBadRequest, "Project ID is required.", "")
		return
	}
	info, err := projectinfo.Fetch(r.Context(), s.projects, project)
	if err != nil {
		s.log.Warn("project info failed", "project", project, "error", err)
		s.writeError(w, http.StatusBadGateway, "Could not fetch project info", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "mode": string(s.engine.Mode())})
}

// --- helpers ---

func decodeBody(w http.ResponseWriter, r *http.Request, into any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scripts.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "Script not found", err.Error())
	case errors.Is(err, scripts.ErrInvalidKey), errors.Is(err, scripts.ErrInvalidScript):
		s.writeError(w, http.StatusBadRequest, "Invalid script", err.Error())
	default:
		s.log.Error("script store failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Script store error", err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message, detail string) {
	s.writeJSON(w, status, ErrorResponse{Error: message, Detail: detail})
}

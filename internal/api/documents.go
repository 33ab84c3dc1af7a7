package api

import (
	"net/http"
	"strconv"

	"github.com/todmy/docguard/internal/decompose"
	"github.com/todmy/docguard/internal/ingest"
	"github.com/todmy/docguard/internal/storage"
	"github.com/todmy/docguard/pkg/models"
)

// DocumentRequest is the body of decompose and ingest calls
type DocumentRequest struct {
	Path              string `json:"path"`
	Content           string `json:"content"`
	PreserveStructure bool   `json:"preserve_structure"`
	MinModules        int    `json:"min_modules,omitempty"`
	MaxModules        int    `json:"max_modules,omitempty"`
	Grounded          bool   `json:"grounded,omitempty"`
}

func (req DocumentRequest) options() decompose.Options {
	return decompose.Options{
		MinModules:        req.MinModules,
		MaxModules:        req.MaxModules,
		PreserveStructure: req.PreserveStructure,
	}
}

// handleDecompose splits a document without persisting anything
func (s *Server) handleDecompose(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	result, err := s.cfg.Decomposer.Decompose(r.Context(), req.Content, req.Path, req.options())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req DocumentRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	result, err := s.cfg.Pipeline.Ingest(r.Context(), ingest.Request{
		ProjectID: projectID,
		Path:      req.Path,
		Content:   req.Content,
		Options:   req.options(),
		Grounded:  req.Grounded,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Unchanged {
		status = http.StatusOK
	}
	respondJSON(w, status, result)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "documentID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.cfg.Pipeline.Delete(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	filter := storage.ModuleFilter{ProjectID: projectID, GroundedOnly: r.URL.Query().Get("grounded") == "true"}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	modules, err := s.cfg.Modules.List(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if modules == nil {
		modules = []*models.Module{}
	}
	respondJSON(w, http.StatusOK, modules)
}

func (s *Server) handleGetModule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "moduleID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	m, err := s.cfg.Modules.GetByID(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (s *Server) handleSetGrounded(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "moduleID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req struct {
		Grounded bool `json:"grounded"`
	}
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.cfg.Modules.SetGrounded(r.Context(), id, req.Grounded); err != nil {
		s.fail(w, r, err)
		return
	}
	m, err := s.cfg.Modules.GetByID(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

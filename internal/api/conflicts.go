package api

import (
	"net/http"

	"github.com/todmy/docguard/internal/conflict"
	"github.com/todmy/docguard/pkg/models"
)

// DetectResponse wraps a funnel run and, when requested, what was persisted
type DetectResponse struct {
	Report *conflict.ModuleReport `json:"report"`
	Stored *conflict.StoreResult  `json:"stored,omitempty"`
}

// ScanRequest is the body of a project scan
type ScanRequest struct {
	GroundedOnly bool `json:"grounded_only,omitempty"`
	MaxModules   int  `json:"max_modules,omitempty"`
	Store        bool `json:"store,omitempty"`
}

// ScanResponse wraps a project scan
type ScanResponse struct {
	Report *conflict.ProjectReport `json:"report"`
	Stored *conflict.StoreResult   `json:"stored,omitempty"`
}

func (s *Server) handleDetectModule(w http.ResponseWriter, r *http.Request) {
	moduleID, err := pathID(r, "moduleID")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	m, err := s.cfg.Modules.GetByID(r.Context(), moduleID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	report, err := s.cfg.Detector.DetectForModule(r.Context(), moduleID, m.ProjectID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := DetectResponse{Report: report}
	if r.URL.Query().Get("store") == "true" {
		if resp.Stored, err = s.cfg.Detector.Store(r.Context(), report.Conflicts); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleScanProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req ScanRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	report, err := s.cfg.Detector.DetectProject(r.Context(), projectID, conflict.ProjectOptions{
		GroundedOnly: req.GroundedOnly,
		MaxModules:   req.MaxModules,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := ScanResponse{Report: report}
	if req.Store {
		if resp.Stored, err = s.cfg.Detector.Store(r.Context(), report.Conflicts); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListConflicts(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var status models.ConflictStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		if status, err = models.ParseConflictStatus(raw); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	conflicts, err := s.cfg.Detector.List(r.Context(), projectID, status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if conflicts == nil {
		conflicts = []*models.PersistedConflict{}
	}
	respondJSON(w, http.StatusOK, conflicts)
}

func (s *Server) handleGetConflict(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "conflictID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.cfg.Detector.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "conflictID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.cfg.Detector.Acknowledge(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

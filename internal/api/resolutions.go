package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/todmy/docguard/internal/auth"
	"github.com/todmy/docguard/internal/resolution"
	"github.com/todmy/docguard/pkg/models"
)

// ResolveRequest is the body of a resolution
type ResolveRequest struct {
	Strategy      models.Strategy `json:"strategy"`
	CustomContent string          `json:"custom_content,omitempty"`
	Note          string          `json:"note,omitempty"`
}

// BatchResolveRequest applies one strategy to many conflicts
type BatchResolveRequest struct {
	ConflictIDs []uuid.UUID     `json:"conflict_ids"`
	Strategy    models.Strategy `json:"strategy"`
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "conflictID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	suggestions, err := s.cfg.Engine.SuggestResolution(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, suggestions)
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "conflictID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rec, err := s.cfg.Engine.Recommend(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "conflictID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	preview, err := s.cfg.Engine.Preview(r.Context(), id, models.Strategy(r.URL.Query().Get("strategy")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, preview)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "conflictID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req ResolveRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	applied, err := s.cfg.Engine.Apply(r.Context(), resolution.ApplyRequest{
		ConflictID:    id,
		Strategy:      req.Strategy,
		CustomContent: req.CustomContent,
		ResolvedBy:    auth.ResolverFromContext(r.Context()),
		Note:          req.Note,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, applied)
}

func (s *Server) handleBatchResolve(w http.ResponseWriter, r *http.Request) {
	var req BatchResolveRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if len(req.ConflictIDs) == 0 {
		respondError(w, http.StatusBadRequest, "conflict_ids is required")
		return
	}

	result, err := s.cfg.Engine.BatchResolve(r.Context(), req.ConflictIDs, req.Strategy, auth.ResolverFromContext(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "conflictID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	records, err := s.cfg.Engine.History(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if records == nil {
		records = []*models.ResolutionRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}

func (s *Server) handleMergedContent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "conflictID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	generated, err := s.cfg.Engine.MergedContent(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, generated)
}

func (s *Server) handleClarifyingContext(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "conflictID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	generated, err := s.cfg.Engine.ClarifyingContext(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, generated)
}

package api

import (
	"net/http"
	"time"

	"github.com/todmy/docguard/internal/embeddings"
	"github.com/todmy/docguard/internal/storage"
	"github.com/todmy/docguard/pkg/models"
)

// SearchRequest is the body of a semantic search
type SearchRequest struct {
	Query        string           `json:"query"`
	OwnerType    models.OwnerType `json:"owner_type,omitempty"`
	GroundedOnly bool             `json:"grounded_only,omitempty"`
	Threshold    float64          `json:"threshold,omitempty"`
	Limit        int              `json:"limit,omitempty"`
}

// SearchResponse carries matches and what the query embedding cost
type SearchResponse struct {
	Matches []embeddings.Match `json:"matches"`
	Usage   models.Usage       `json:"usage"`
}

const defaultSearchLimit = 10

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req SearchRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	switch req.OwnerType {
	case "", models.OwnerDocument, models.OwnerModule:
	default:
		respondError(w, http.StatusBadRequest, "owner_type must be document or module")
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultSearchLimit
	}

	matches, usage, err := s.cfg.Index.Search(r.Context(), req.Query, embeddings.SearchOptions{
		ProjectID:    projectID,
		OwnerType:    req.OwnerType,
		GroundedOnly: req.GroundedOnly,
		Threshold:    req.Threshold,
		Limit:        req.Limit,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, SearchResponse{Matches: matches, Usage: usage})
}

func (s *Server) handleEmbeddingStats(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	stats, err := s.cfg.Index.Stats(r.Context(), storage.EmbeddingScope{ProjectID: projectID})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRefreshEmbeddings(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req struct {
		MaxAgeHours int `json:"max_age_hours"`
	}
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	result, err := s.cfg.Index.RefreshStale(r.Context(),
		storage.EmbeddingScope{ProjectID: projectID},
		time.Duration(req.MaxAgeHours)*time.Hour,
		s.cfg.Pipeline.LoadText,
	)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

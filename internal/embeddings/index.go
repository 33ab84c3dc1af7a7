package embeddings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/todmy/docguard/internal/similarity"
	"github.com/todmy/docguard/internal/storage"
	"github.com/todmy/docguard/pkg/models"
)

// DefaultMaxAge is the age after which embeddings are eligible for RefreshStale
const DefaultMaxAge = 30 * 24 * time.Hour

// Owner identifies the document or module an embedding set belongs to
type Owner struct {
	ID        uuid.UUID
	Type      models.OwnerType
	ProjectID uuid.UUID
}

// EmbedResult is the outcome of Index.Embed
type EmbedResult struct {
	Records []*models.EmbeddingRecord
	Usage   models.Usage
	// Cached is true when existing records were returned without an oracle call
	Cached bool
}

// SearchOptions scopes a nearest-neighbor query
type SearchOptions struct {
	ProjectID    uuid.UUID
	OwnerType    models.OwnerType
	GroundedOnly bool
	Threshold    float64
	Limit        int
	// Exclude drops owners from the candidate set, typically the querying module
	Exclude []uuid.UUID
}

// Match is the best-scoring chunk of one owner
type Match struct {
	OwnerID    uuid.UUID        `json:"owner_id"`
	OwnerType  models.OwnerType `json:"owner_type"`
	ProjectID  uuid.UUID        `json:"project_id"`
	ChunkIndex int              `json:"chunk_index"`
	ChunkText  string           `json:"chunk_text"`
	Similarity float64          `json:"similarity"`
}

// TextLoader returns the current text of an owner during RefreshStale.
// Returning models.ErrNotFound drops the owner's orphaned records.
type TextLoader func(ctx context.Context, owner Owner) (string, error)

// RefreshResult summarizes a RefreshStale run
type RefreshResult struct {
	Refreshed int          `json:"refreshed"`
	Removed   int          `json:"removed"`
	Failed    int          `json:"failed"`
	Usage     models.Usage `json:"usage"`
}

// Stats describes the records visible in a scope
type Stats struct {
	Owners      int            `json:"owners"`
	Chunks      int            `json:"chunks"`
	Models      map[string]int `json:"models"`
	Dimensions  map[int]int    `json:"dimensions"`
	Oldest      *time.Time     `json:"oldest,omitempty"`
	Newest      *time.Time     `json:"newest,omitempty"`
	StaleOwners int            `json:"stale_owners"`
}

// Index chunks, embeds and searches owner text
type Index struct {
	repo     storage.EmbeddingRepository
	embedder Embedder
	query    Embedder
	logger   *zap.Logger
	now      func() time.Time
}

// IndexOption configures an Index
type IndexOption func(*Index)

// WithQueryCache caches query vectors; stored records never go through it
func WithQueryCache(cache Cache) IndexOption {
	return func(ix *Index) {
		ix.query = NewCachedEmbedder(ix.embedder, cache)
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) IndexOption {
	return func(ix *Index) {
		ix.logger = logger
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) IndexOption {
	return func(ix *Index) {
		ix.now = now
	}
}

// NewIndex creates an Index over repo using embedder
func NewIndex(repo storage.EmbeddingRepository, embedder Embedder, opts ...IndexOption) *Index {
	ix := &Index{
		repo:     repo,
		embedder: embedder,
		query:    embedder,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Model returns the embedding model in use
func (ix *Index) Model() string { return ix.embedder.Model() }

// Embed stores vectors for an owner's text. When the stored chunks already
// match the text under the current model they are returned at zero cost.
func (ix *Index) Embed(ctx context.Context, owner Owner, text string) (*EmbedResult, error) {
	return ix.embed(ctx, owner, text, false)
}

func (ix *Index) embed(ctx context.Context, owner Owner, text string, force bool) (*EmbedResult, error) {
	chunks := Chunk(text, ix.embedder.MaxInputTokens())
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: empty text for owner %s", models.ErrInvalidInput, owner.ID)
	}

	if !force {
		existing, err := ix.repo.GetByOwner(ctx, owner.ID)
		if err != nil {
			return nil, fmt.Errorf("load embeddings: %w", err)
		}
		if sameChunks(existing, chunks, ix.embedder.Model()) {
			return &EmbedResult{Records: existing, Cached: true}, nil
		}
	}

	res, err := ix.embedder.EmbedTexts(ctx, chunks)
	if err != nil {
		return nil, err
	}
	if err := checkVectors(res.Vectors, len(chunks), ix.embedder.Dimensions()); err != nil {
		return nil, err
	}

	now := ix.now()
	records := make([]*models.EmbeddingRecord, len(chunks))
	for i, chunk := range chunks {
		records[i] = &models.EmbeddingRecord{
			ID:         uuid.New(),
			OwnerID:    owner.ID,
			OwnerType:  owner.Type,
			ProjectID:  owner.ProjectID,
			ChunkIndex: i,
			ChunkText:  chunk,
			Vector:     res.Vectors[i],
			Model:      ix.embedder.Model(),
			Dimensions: len(res.Vectors[i]),
			CreatedAt:  now,
		}
	}

	if err := ix.repo.ReplaceForOwner(ctx, owner.ID, records); err != nil {
		return nil, fmt.Errorf("store embeddings: %w", err)
	}

	ix.logger.Debug("embedded owner",
		zap.String("owner_id", owner.ID.String()),
		zap.Int("chunks", len(records)),
	)

	return &EmbedResult{Records: records, Usage: res.Usage(ix.embedder.Model())}, nil
}

// Invalidate drops every record of an owner
func (ix *Index) Invalidate(ctx context.Context, ownerID uuid.UUID) error {
	return ix.repo.DeleteByOwner(ctx, ownerID)
}

// QueryVector embeds free text, averaging chunk vectors when it spans several chunks
func (ix *Index) QueryVector(ctx context.Context, text string) ([]float32, models.Usage, error) {
	chunks := Chunk(text, ix.query.MaxInputTokens())
	if len(chunks) == 0 {
		return nil, models.Usage{}, fmt.Errorf("%w: empty query", models.ErrInvalidInput)
	}

	res, err := ix.query.EmbedTexts(ctx, chunks)
	if err != nil {
		return nil, models.Usage{}, err
	}
	usage := res.Usage(ix.query.Model())
	if err := checkVectors(res.Vectors, len(chunks), ix.query.Dimensions()); err != nil {
		return nil, usage, err
	}

	vec, err := similarity.Mean(res.Vectors)
	return vec, usage, err
}

// OwnerVector returns the mean of an owner's stored chunk vectors
func (ix *Index) OwnerVector(ctx context.Context, ownerID uuid.UUID) ([]float32, error) {
	records, err := ix.repo.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("embeddings for %s: %w", ownerID, models.ErrNotFound)
	}

	vectors := make([][]float32, len(records))
	for i, rec := range records {
		vectors[i] = rec.Vector
	}
	return similarity.Mean(vectors)
}

// NearestNeighbors ranks owners in scope by their best chunk similarity to query.
// Records whose dimension differs from the query are skipped.
func (ix *Index) NearestNeighbors(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	records, err := ix.repo.ListByScope(ctx, storage.EmbeddingScope{
		ProjectID:    opts.ProjectID,
		OwnerType:    opts.OwnerType,
		GroundedOnly: opts.GroundedOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}

	excluded := make(map[uuid.UUID]bool, len(opts.Exclude))
	for _, id := range opts.Exclude {
		excluded[id] = true
	}

	best := make(map[uuid.UUID]Match)
	skipped := 0
	for _, rec := range records {
		if excluded[rec.OwnerID] {
			continue
		}
		sim, err := similarity.CosineSimilarity(query, rec.Vector)
		if err != nil {
			skipped++
			continue
		}
		if sim < opts.Threshold {
			continue
		}
		if cur, ok := best[rec.OwnerID]; ok && cur.Similarity >= sim {
			continue
		}
		best[rec.OwnerID] = Match{
			OwnerID:    rec.OwnerID,
			OwnerType:  rec.OwnerType,
			ProjectID:  rec.ProjectID,
			ChunkIndex: rec.ChunkIndex,
			ChunkText:  rec.ChunkText,
			Similarity: sim,
		}
	}
	if skipped > 0 {
		ix.logger.Debug("skipped records with foreign dimensions", zap.Int("count", skipped))
	}

	matches := make([]Match, 0, len(best))
	for _, m := range best {
		matches = append(matches, m)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].OwnerID.String() < matches[j].OwnerID.String()
	})

	if opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}
	return matches, nil
}

// Search embeds a free-text query and runs NearestNeighbors
func (ix *Index) Search(ctx context.Context, query string, opts SearchOptions) ([]Match, models.Usage, error) {
	vec, usage, err := ix.QueryVector(ctx, query)
	if err != nil {
		return nil, usage, err
	}
	matches, err := ix.NearestNeighbors(ctx, vec, opts)
	return matches, usage, err
}

// RefreshStale regenerates the embeddings of owners whose newest record is
// older than maxAge. An unavailable oracle stops the run; other per-owner
// failures are counted and skipped.
func (ix *Index) RefreshStale(ctx context.Context, scope storage.EmbeddingScope, maxAge time.Duration, load TextLoader) (*RefreshResult, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	stale, err := ix.repo.ListStaleOwners(ctx, scope, ix.now().Add(-maxAge))
	if err != nil {
		return nil, fmt.Errorf("list stale owners: %w", err)
	}

	result := &RefreshResult{}
	for _, s := range stale {
		owner := Owner{ID: s.OwnerID, Type: s.OwnerType, ProjectID: s.ProjectID}
		log := ix.logger.With(zap.String("owner_id", owner.ID.String()))

		text, err := load(ctx, owner)
		if errors.Is(err, models.ErrNotFound) {
			if err := ix.repo.DeleteByOwner(ctx, owner.ID); err != nil {
				return result, err
			}
			result.Removed++
			continue
		}
		if err != nil {
			log.Warn("load owner text", zap.Error(err))
			result.Failed++
			continue
		}

		res, err := ix.embed(ctx, owner, text, true)
		if err != nil {
			if errors.Is(err, models.ErrOracleUnavailable) {
				return result, err
			}
			log.Warn("refresh embeddings", zap.Error(err))
			result.Failed++
			continue
		}
		result.Refreshed++
		result.Usage.Add(res.Usage)
	}

	ix.logger.Info("refreshed stale embeddings",
		zap.Int("refreshed", result.Refreshed),
		zap.Int("removed", result.Removed),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// Stats summarizes the records in scope
func (ix *Index) Stats(ctx context.Context, scope storage.EmbeddingScope) (*Stats, error) {
	records, err := ix.repo.ListByScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	stale, err := ix.repo.ListStaleOwners(ctx, scope, ix.now().Add(-DefaultMaxAge))
	if err != nil {
		return nil, err
	}

	st := &Stats{
		Models:      make(map[string]int),
		Dimensions:  make(map[int]int),
		StaleOwners: len(stale),
	}
	owners := make(map[uuid.UUID]bool)
	for _, rec := range records {
		owners[rec.OwnerID] = true
		st.Chunks++
		st.Models[rec.Model]++
		st.Dimensions[rec.Dimensions]++
		created := rec.CreatedAt
		if st.Oldest == nil || created.Before(*st.Oldest) {
			st.Oldest = &created
		}
		if st.Newest == nil || created.After(*st.Newest) {
			st.Newest = &created
		}
	}
	st.Owners = len(owners)
	return st, nil
}

func sameChunks(existing []*models.EmbeddingRecord, chunks []string, model string) bool {
	if len(existing) != len(chunks) {
		return false
	}
	for i, rec := range existing {
		if rec.ChunkIndex != i || rec.ChunkText != chunks[i] || rec.Model != model {
			return false
		}
	}
	return true
}

func checkVectors(vectors [][]float32, want, dims int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: got %d vectors for %d chunks", models.ErrOracleUnavailable, len(vectors), want)
	}
	for i, v := range vectors {
		if dims > 0 && len(v) != dims {
			return fmt.Errorf("chunk %d has %d dimensions, want %d: %w", i, len(v), dims, similarity.ErrDimensionMismatch)
		}
	}
	return nil
}

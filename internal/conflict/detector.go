// Package conflict implements the three-stage conflict funnel: embedding
// similarity screening, entity overlap and oracle confirmation, plus project
// scans and persistence of confirmed conflicts.
package conflict

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/todmy/docguard/internal/embeddings"
	"github.com/todmy/docguard/internal/llm"
	"github.com/todmy/docguard/internal/similarity"
	"github.com/todmy/docguard/internal/storage"
	"github.com/todmy/docguard/pkg/models"
)

// Detector runs the funnel
type Detector struct {
	modules   storage.ModuleRepository
	conflicts storage.ConflictRepository
	index     *embeddings.Index
	gen       llm.Generator
	cfg       Config
	logger    *zap.Logger
	sleep     func(context.Context, time.Duration) error
}

// NewDetector creates a new Detector
func NewDetector(
	modules storage.ModuleRepository,
	conflicts storage.ConflictRepository,
	index *embeddings.Index,
	gen llm.Generator,
	cfg Config,
	logger *zap.Logger,
) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		modules:   modules,
		conflicts: conflicts,
		index:     index,
		gen:       gen,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		sleep:     sleepCtx,
	}
}

// DetectForModule runs the funnel with moduleID as the source.
// projectID may be uuid.Nil to use the module's own project.
func (d *Detector) DetectForModule(ctx context.Context, moduleID, projectID uuid.UUID) (*ModuleReport, error) {
	source, err := d.modules.GetByID(ctx, moduleID)
	if err != nil {
		return nil, fmt.Errorf("load module %s: %w", moduleID, err)
	}
	if projectID != uuid.Nil && source.ProjectID != projectID {
		return nil, fmt.Errorf("%w: module %s is not in project %s", models.ErrInvalidInput, moduleID, projectID)
	}
	return d.detect(ctx, source, false, newEntityCache())
}

func (d *Detector) detect(ctx context.Context, source *models.Module, groundedOnly bool, cache *entityCache) (*ModuleReport, error) {
	report := &ModuleReport{
		ModuleID:        source.ID,
		Candidates:      []Candidate{},
		EntityConflicts: []EntityConflict{},
		Conflicts:       []DetectedConflict{},
	}
	log := d.logger.With(zap.String("module_id", source.ID.String()))

	// Stage 1
	candidates, candidateModules, usage, err := d.screen(ctx, source, groundedOnly, log)
	report.Usage.Similarity = usage
	if err != nil {
		return nil, err
	}
	report.Candidates = candidates
	if len(candidates) == 0 {
		return report, nil
	}

	// Stage 2
	all := append([]*models.Module{source}, candidateModules...)
	entities, usage, dropped, err := d.extractBatch(ctx, all, cache)
	report.Usage.Entities = usage
	report.Dropped += dropped
	if err != nil {
		return nil, err
	}
	sourceEntities, ok := entities[source.ContentHash]
	if !ok {
		report.Dropped += len(candidates)
		return report, nil
	}

	byID := make(map[uuid.UUID]*models.Module, len(candidateModules))
	for _, m := range candidateModules {
		byID[m.ID] = m
	}

	for _, c := range candidates {
		candidateEntities, ok := entities[byID[c.ModuleID].ContentHash]
		if !ok {
			report.Dropped++
			continue
		}
		matches := MatchEntities(sourceEntities, candidateEntities)
		score := OverlapScore(len(matches), len(sourceEntities), len(candidateEntities))
		if score < d.cfg.OverlapThreshold {
			continue
		}
		report.EntityConflicts = append(report.EntityConflicts, EntityConflict{
			Candidate:    c,
			Matches:      matches,
			OverlapScore: score,
		})
	}

	// Stage 3
	for _, ec := range report.EntityConflicts {
		candidate := byID[ec.Candidate.ModuleID]
		v, usage, err := d.confirm(ctx, source, candidate, ec)
		report.Usage.Confirmation.Add(usage)
		if err != nil {
			if errors.Is(err, models.ErrOracleParse) {
				log.Warn("confirmation dropped",
					zap.String("candidate_id", candidate.ID.String()),
					zap.String("stage", "confirmation"),
					zap.Error(err),
				)
				report.Dropped++
				continue
			}
			return nil, fmt.Errorf("confirm %s against %s: %w", source.ID, candidate.ID, err)
		}
		if !v.IsConflict || v.Confidence < d.cfg.ConfidenceThreshold {
			continue
		}

		report.Conflicts = append(report.Conflicts, DetectedConflict{
			ProjectID:             source.ProjectID,
			SourceModuleID:        source.ID,
			ConflictingModuleID:   candidate.ID,
			ConflictingDocumentID: candidate.DocumentID,
			ConflictType:          v.conflictType,
			Severity:              v.severity,
			Confidence:            v.Confidence,
			Evidence:              v.Evidence,
			ResolutionSuggestions: append([]string{}, v.ResolutionSuggestions...),
			Similarity:            ec.Candidate.Similarity,
			OverlapScore:          ec.OverlapScore,
		})
	}

	log.Debug("funnel finished",
		zap.Int("candidates", len(report.Candidates)),
		zap.Int("entity_conflicts", len(report.EntityConflicts)),
		zap.Int("conflicts", len(report.Conflicts)),
		zap.Int("dropped", report.Dropped),
	)
	return report, nil
}

// screen embeds the source if needed and returns its nearest neighbors above
// the similarity threshold, capped at MaxCandidates
func (d *Detector) screen(ctx context.Context, source *models.Module, groundedOnly bool, log *zap.Logger) ([]Candidate, []*models.Module, models.Usage, error) {
	embedded, err := d.index.Embed(ctx, moduleOwner(source), source.Content)
	if err != nil {
		return nil, nil, models.Usage{}, fmt.Errorf("embed module %s: %w", source.ID, err)
	}
	usage := embedded.Usage

	vectors := make([][]float32, len(embedded.Records))
	for i, rec := range embedded.Records {
		vectors[i] = rec.Vector
	}
	query, err := similarity.Mean(vectors)
	if err != nil {
		return nil, nil, usage, err
	}

	matches, err := d.index.NearestNeighbors(ctx, query, embeddings.SearchOptions{
		ProjectID:    source.ProjectID,
		OwnerType:    models.OwnerModule,
		GroundedOnly: groundedOnly,
		Threshold:    d.cfg.SimilarityThreshold,
		Exclude:      []uuid.UUID{source.ID},
	})
	if err != nil {
		return nil, nil, usage, err
	}

	var candidates []Candidate
	var loaded []*models.Module
	for _, m := range matches {
		if len(candidates) == d.cfg.MaxCandidates {
			break
		}
		mod, err := d.modules.GetByID(ctx, m.OwnerID)
		if err != nil {
			log.Warn("candidate dropped",
				zap.String("candidate_id", m.OwnerID.String()),
				zap.String("stage", "similarity"),
				zap.Error(err),
			)
			continue
		}
		if !mod.IsActive {
			continue
		}
		candidates = append(candidates, Candidate{
			ModuleID:   mod.ID,
			DocumentID: mod.DocumentID,
			Title:      mod.Title,
			Similarity: m.Similarity,
		})
		loaded = append(loaded, mod)
	}
	if candidates == nil {
		candidates = []Candidate{}
	}
	return candidates, loaded, usage, nil
}

// DetectProject runs the funnel for every module of a project on a bounded
// worker pool. Conflicts are deduplicated by canonical pair in module order.
// An unavailable oracle aborts the scan; other per-module failures are reported.
func (d *Detector) DetectProject(ctx context.Context, projectID uuid.UUID, opts ProjectOptions) (*ProjectReport, error) {
	modules, err := d.modules.List(ctx, storage.ModuleFilter{
		ProjectID:    projectID,
		GroundedOnly: opts.GroundedOnly,
		Limit:        opts.MaxModules,
	})
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}

	result := &ProjectReport{
		Conflicts: []DetectedConflict{},
		Summary:   ProjectSummary{BySeverity: make(map[models.Severity]int)},
	}

	// Every scanned module must be indexed before any of them is screened.
	var active []*models.Module
	for _, m := range modules {
		if !m.IsActive {
			continue
		}
		embedded, err := d.index.Embed(ctx, moduleOwner(m), m.Content)
		if err != nil {
			if errors.Is(err, models.ErrOracleUnavailable) {
				return nil, fmt.Errorf("index module %s: %w", m.ID, err)
			}
			result.Failures = append(result.Failures, ModuleFailure{ModuleID: m.ID, Error: err.Error()})
			continue
		}
		result.Usage.Similarity.Add(embedded.Usage)
		active = append(active, m)
	}

	reports := make([]*ModuleReport, len(active))
	failures := make([]error, len(active))
	cache := newEntityCache()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)
	for i, m := range active {
		g.Go(func() error {
			report, err := d.detect(gctx, m, opts.GroundedOnly, cache)
			if err != nil {
				if errors.Is(err, models.ErrOracleUnavailable) || gctx.Err() != nil {
					return err
				}
				d.logger.Warn("module scan failed", zap.String("module_id", m.ID.String()), zap.Error(err))
				failures[i] = err
				return nil
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for i, report := range reports {
		if failures[i] != nil {
			result.Failures = append(result.Failures, ModuleFailure{ModuleID: active[i].ID, Error: failures[i].Error()})
			continue
		}
		result.Summary.ModulesScanned++
		result.Summary.Candidates += len(report.Candidates)
		result.Summary.EntityConflicts += len(report.EntityConflicts)
		result.Usage.Add(report.Usage)

		for _, c := range report.Conflicts {
			key := c.PairKey()
			if seen[key] {
				continue
			}
			seen[key] = true
			result.Conflicts = append(result.Conflicts, c)
		}
	}

	sort.SliceStable(result.Conflicts, func(i, j int) bool {
		return result.Conflicts[i].Severity.Rank() > result.Conflicts[j].Severity.Rank()
	})
	for sev, group := range GroupBySeverity(result.Conflicts) {
		result.Summary.BySeverity[sev] = len(group)
	}
	result.Summary.Conflicts = len(result.Conflicts)
	result.Summary.ModulesFailed = len(result.Failures)
	result.Total = result.Usage.Total()

	d.logger.Info("project scan finished",
		zap.String("project_id", projectID.String()),
		zap.Int("modules", result.Summary.ModulesScanned),
		zap.Int("failed", result.Summary.ModulesFailed),
		zap.Int("conflicts", result.Summary.Conflicts),
		zap.Float64("cost_usd", result.Total.CostUSD),
	)
	return result, nil
}

func moduleOwner(m *models.Module) embeddings.Owner {
	return embeddings.Owner{ID: m.ID, Type: models.OwnerModule, ProjectID: m.ProjectID}
}

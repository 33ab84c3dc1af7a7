package resolution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/todmy/docguard/internal/llm"
	"github.com/todmy/docguard/internal/storage"
	"github.com/todmy/docguard/pkg/models"
)

// Invalidator drops stale embeddings for a module
type Invalidator interface {
	Invalidate(ctx context.Context, ownerID uuid.UUID) error
}

// Engine suggests, previews and applies resolutions
type Engine struct {
	modules     storage.ModuleRepository
	conflicts   storage.ConflictRepository
	resolutions storage.ResolutionRepository
	index       Invalidator
	gen         llm.Generator
	logger      *zap.Logger
	now         func() time.Time
}

// NewEngine creates a new Engine. gen may be nil when only the
// zero-cost operations are used.
func NewEngine(
	modules storage.ModuleRepository,
	conflicts storage.ConflictRepository,
	resolutions storage.ResolutionRepository,
	index Invalidator,
	gen llm.Generator,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		modules:     modules,
		conflicts:   conflicts,
		resolutions: resolutions,
		index:       index,
		gen:         gen,
		logger:      logger,
		now:         time.Now,
	}
}

type pair struct {
	conflict    *models.PersistedConflict
	source      *models.Module
	conflicting *models.Module
}

func (e *Engine) load(ctx context.Context, conflictID uuid.UUID) (*pair, error) {
	c, err := e.conflicts.GetByID(ctx, conflictID)
	if err != nil {
		return nil, fmt.Errorf("load conflict %s: %w", conflictID, err)
	}
	return e.loadModules(ctx, c)
}

func (e *Engine) loadModules(ctx context.Context, c *models.PersistedConflict) (*pair, error) {
	source, err := e.modules.GetByID(ctx, c.ModuleID)
	if err != nil {
		return nil, fmt.Errorf("load source module %s: %w", c.ModuleID, err)
	}
	conflicting, err := e.modules.GetByID(ctx, c.ConflictingModuleID)
	if err != nil {
		return nil, fmt.Errorf("load conflicting module %s: %w", c.ConflictingModuleID, err)
	}
	return &pair{conflict: c, source: source, conflicting: conflicting}, nil
}

// QuickRecommendation picks a strategy from grounding flags and update times
// without calling the oracle
func QuickRecommendation(c *models.PersistedConflict, source, conflicting *models.Module) Recommendation {
	switch {
	case source.IsGrounded && conflicting.IsGrounded:
		if c.Severity == models.SeverityCritical {
			return Recommendation{models.StrategyMerge, "both modules are grounded and the conflict is critical"}
		}
		return Recommendation{models.StrategyClarify, "both modules are grounded; clarify when each applies"}
	case source.IsGrounded:
		return Recommendation{models.StrategyDeprecate, "only the source module is grounded"}
	case conflicting.IsGrounded:
		return Recommendation{models.StrategyReplace, "only the conflicting module is grounded"}
	case conflicting.UpdatedAt.After(source.UpdatedAt):
		return Recommendation{models.StrategyReplace, "neither module is grounded and the conflicting one is newer"}
	default:
		return Recommendation{models.StrategyMerge, "neither module is grounded and the source is at least as recent"}
	}
}

// Recommend loads a conflict and runs QuickRecommendation
func (e *Engine) Recommend(ctx context.Context, conflictID uuid.UUID) (Recommendation, error) {
	p, err := e.load(ctx, conflictID)
	if err != nil {
		return Recommendation{}, err
	}
	return QuickRecommendation(p.conflict, p.source, p.conflicting), nil
}

func plan(strategy models.Strategy, source, conflicting *models.Module) []AffectedModule {
	src := func(a models.ImpactAction) AffectedModule {
		return AffectedModule{ModuleID: source.ID, Title: source.Title, Action: a}
	}
	dst := func(a models.ImpactAction) AffectedModule {
		return AffectedModule{ModuleID: conflicting.ID, Title: conflicting.Title, Action: a}
	}

	switch strategy {
	case models.StrategyMerge, models.StrategyReplace:
		return []AffectedModule{src(models.ActionUpdate), dst(models.ActionDelete)}
	case models.StrategyDeprecate:
		return []AffectedModule{dst(models.ActionUnground)}
	default:
		return []AffectedModule{src(models.ActionUpdate), dst(models.ActionUpdate)}
	}
}

// Preview reports the modules a strategy would touch without changing anything
func (e *Engine) Preview(ctx context.Context, conflictID uuid.UUID, strategy models.Strategy) (*Preview, error) {
	if _, err := models.ParseStrategy(string(strategy)); err != nil {
		return nil, err
	}
	p, err := e.load(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	return &Preview{
		ConflictID: conflictID,
		Strategy:   strategy,
		Affected:   plan(strategy, p.source, p.conflicting),
	}, nil
}

// Apply performs the mutation its Preview describes, marks the conflict
// resolved and appends an audit record. All writes land in one store batch,
// so a failure leaves the conflict open and the modules untouched. Only open
// or acknowledged conflicts can be resolved.
func (e *Engine) Apply(ctx context.Context, req ApplyRequest) (*Applied, error) {
	strategy, err := models.ParseStrategy(string(req.Strategy))
	if err != nil {
		return nil, err
	}
	c, err := e.conflicts.GetByID(ctx, req.ConflictID)
	if err != nil {
		return nil, fmt.Errorf("load conflict %s: %w", req.ConflictID, err)
	}
	if !c.Active() {
		return nil, fmt.Errorf("%w: conflict %s is %s", models.ErrInvalidInput, req.ConflictID, c.Status)
	}
	p, err := e.loadModules(ctx, c)
	if err != nil {
		return nil, err
	}

	content := strings.TrimSpace(req.CustomContent)
	switch strategy {
	case models.StrategyMerge, models.StrategyClarify, models.StrategySplitScope:
		if content == "" {
			return nil, fmt.Errorf("%w: %s needs custom content", models.ErrInvalidInput, strategy)
		}
	case models.StrategyReplace:
		if content == "" {
			content = p.conflicting.Content
		}
	}

	now := e.now()
	var batch storage.ResolutionBatch
	var changes []models.ModuleChange
	for _, a := range plan(strategy, p.source, p.conflicting) {
		m := p.source
		if a.ModuleID == p.conflicting.ID {
			m = p.conflicting
		}
		change := models.ModuleChange{ModuleID: m.ID, Action: a.Action}
		switch a.Action {
		case models.ActionDelete:
			batch.Deleted = append(batch.Deleted, m.ID)
		case models.ActionUnground:
			batch.Ungrounded = append(batch.Ungrounded, m.ID)
		case models.ActionUpdate:
			rewrite(strategy, m, content)
			m.UpdatedAt = now
			change.NewContent = m.Content
			batch.Updated = append(batch.Updated, m)
		default:
			return nil, fmt.Errorf("%w: unsupported action %s", models.ErrInvalidInput, a.Action)
		}
		changes = append(changes, change)
	}

	resolvedBy := req.ResolvedBy
	if resolvedBy == "" {
		resolvedBy = DefaultResolver
	}
	p.conflict.Status = models.StatusResolved
	p.conflict.ResolvedAt = &now
	p.conflict.ResolvedBy = resolvedBy
	p.conflict.ResolutionStrategy = strategy
	p.conflict.ResolutionNote = req.Note

	batch.Conflict = p.conflict
	batch.Record = &models.ResolutionRecord{
		ID:         uuid.New(),
		ConflictID: p.conflict.ID,
		Strategy:   strategy,
		ResolvedBy: resolvedBy,
		Changes:    changes,
		CreatedAt:  now,
	}
	if err := e.resolutions.Apply(ctx, batch); err != nil {
		return nil, fmt.Errorf("apply %s to conflict %s: %w", strategy, p.conflict.ID, err)
	}

	// Deleted modules lose their embeddings inside the batch. Rewritten ones
	// are re-embedded on the next refresh, so a failed invalidation only
	// leaves a stale vector behind.
	for _, m := range batch.Updated {
		if err := e.invalidate(ctx, m.ID); err != nil {
			e.logger.Warn("stale embeddings kept after resolution",
				zap.String("module_id", m.ID.String()),
				zap.Error(err),
			)
		}
	}

	e.logger.Info("conflict resolved",
		zap.String("conflict_id", p.conflict.ID.String()),
		zap.String("strategy", string(strategy)),
		zap.String("resolved_by", resolvedBy),
		zap.Int("changes", len(changes)),
	)
	return &Applied{Conflict: p.conflict, Record: batch.Record}, nil
}

// rewrite applies the content change of an update action to m
func rewrite(strategy models.Strategy, m *models.Module, content string) {
	switch strategy {
	case models.StrategyMerge, models.StrategyReplace:
		m.SetContent(content)
	case models.StrategySplitScope:
		m.SetContent(prepend(content, m.Content))
		m.Tags = addTag(m.Tags, "scoped")
	case models.StrategyVersionBoth:
		if content != "" {
			m.SetContent(prepend(content, m.Content))
		}
		m.Tags = addTag(m.Tags, "versioned")
	default:
		m.SetContent(prepend(content, m.Content))
	}
}

func (e *Engine) invalidate(ctx context.Context, id uuid.UUID) error {
	if e.index == nil {
		return nil
	}
	if err := e.index.Invalidate(ctx, id); err != nil {
		return fmt.Errorf("invalidate embeddings: %w", err)
	}
	return nil
}

// BatchResolve applies one strategy to many conflicts and reports per-item
// failures. A canceled context stops the batch.
func (e *Engine) BatchResolve(ctx context.Context, ids []uuid.UUID, strategy models.Strategy, resolvedBy string) (*BatchResult, error) {
	result := &BatchResult{Resolved: []uuid.UUID{}, Failures: []BatchFailure{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		_, err := e.Apply(ctx, ApplyRequest{ConflictID: id, Strategy: strategy, ResolvedBy: resolvedBy})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return result, err
			}
			e.logger.Warn("batch resolution failed", zap.String("conflict_id", id.String()), zap.Error(err))
			result.Failures = append(result.Failures, BatchFailure{ConflictID: id, Error: err.Error()})
			continue
		}
		result.Resolved = append(result.Resolved, id)
	}
	return result, nil
}

func prepend(note, body string) string {
	return strings.TrimSpace(note) + "\n\n" + body
}

func addTag(tags []string, tag string) []string {
	for _, t := range tags {
		if t == tag {
			return tags
		}
	}
	return append(tags, tag)
}

// History returns the audit trail of a conflict, oldest first
func (e *Engine) History(ctx context.Context, conflictID uuid.UUID) ([]*models.ResolutionRecord, error) {
	if _, err := e.conflicts.GetByID(ctx, conflictID); err != nil {
		return nil, err
	}
	return e.resolutions.ListByConflict(ctx, conflictID)
}

package conflict

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/todmy/docguard/internal/embeddings"
	"github.com/todmy/docguard/internal/embeddings/embeddingstest"
	"github.com/todmy/docguard/internal/llm"
	"github.com/todmy/docguard/internal/llm/llmtest"
	"github.com/todmy/docguard/internal/storage/memstore"
	"github.com/todmy/docguard/pkg/models"
)

const (
	routeEntities = "extract typed factual entities"
	routeConfirm  = "contradict each other"
)

const sharedText = `The public gateway protects every tenant with a request quota enforced per API key.
Clients that exceed the quota receive status 429 together with a Retry-After header
and should back off before sending further traffic to the gateway endpoints.`

type fixture struct {
	store   *memstore.Store
	fake    *embeddingstest.Fake
	index   *embeddings.Index
	oracle  *llmtest.Scripted
	project uuid.UUID
	doc     uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	fake := embeddingstest.New()
	return &fixture{
		store:   store,
		fake:    fake,
		index:   embeddings.NewIndex(store.Embeddings(), fake),
		oracle:  llmtest.New(),
		project: uuid.New(),
		doc:     uuid.New(),
	}
}

func (f *fixture) module(t *testing.T, key, content string) *models.Module {
	t.Helper()
	m := &models.Module{
		DocumentID: f.doc,
		ProjectID:  f.project,
		ModuleKey:  key,
		Title:      key,
		IsActive:   true,
	}
	m.SetContent(content)
	require.NoError(t, f.store.Modules().CreateBatch(context.Background(), []*models.Module{m}))
	return m
}

func (f *fixture) embed(t *testing.T, modules ...*models.Module) {
	t.Helper()
	for _, m := range modules {
		_, err := f.index.Embed(context.Background(), moduleOwner(m), m.Content)
		require.NoError(t, err)
	}
}

func (f *fixture) detector(cfg Config) *Detector {
	d := NewDetector(f.store.Modules(), f.store.Conflicts(), f.index, f.oracle, cfg, nil)
	d.sleep = func(context.Context, time.Duration) error { return nil }
	return d
}

// rateLimitPair seeds X (100 req/min), Y (1000 req/min) and an unrelated Z
func (f *fixture) rateLimitPair(t *testing.T) (x, y, z *models.Module) {
	t.Helper()
	x = f.module(t, "limits-v1", sharedText+"\nRate limit: 100 req/min.")
	y = f.module(t, "limits-v2", sharedText+"\nRate limit: 1000 req/min.")
	z = f.module(t, "install", "Install the command line tool with homebrew, then run the init wizard once.")
	return x, y, z
}

func entitiesBody(entities ...Entity) string {
	raw, _ := json.Marshal(map[string]any{"entities": entities})
	return llmtest.Fenced(string(raw))
}

// scriptRateLimitEntities answers extraction by which limit the module states
func (f *fixture) scriptRateLimitEntities() {
	f.oracle.On(routeEntities, func(req llm.Request) (string, error) {
		switch {
		case strings.Contains(req.Prompt, "1000 req/min"):
			return entitiesBody(
				Entity{Type: models.EntityConcept, Value: "rate limit"},
				Entity{Type: models.EntitySpec, Value: "1000 req/min"},
			), nil
		case strings.Contains(req.Prompt, "100 req/min"):
			return entitiesBody(
				Entity{Type: models.EntityConcept, Value: "rate limit"},
				Entity{Type: models.EntitySpec, Value: "100 req/min"},
			), nil
		default:
			return entitiesBody(Entity{Type: models.EntityDependency, Value: "homebrew"}), nil
		}
	})
}

func verdictBody(isConflict bool, confidence float64) string {
	raw, _ := json.Marshal(map[string]any{
		"isConflict":            isConflict,
		"conflictType":          "content",
		"severity":              "high",
		"confidence":            confidence,
		"evidence":              "100 req/min vs 1000 req/min",
		"resolutionSuggestions": []string{"keep the newer limit"},
	})
	return llmtest.Fenced(string(raw))
}

func moduleIDs[T any](items []T, id func(T) uuid.UUID) map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool, len(items))
	for _, it := range items {
		out[id(it)] = true
	}
	return out
}

func TestDetectForModule_RateLimitContradiction(t *testing.T) {
	f := newFixture(t)
	x, y, z := f.rateLimitPair(t)
	f.embed(t, x, z)
	f.scriptRateLimitEntities()
	f.oracle.OnText(routeConfirm, verdictBody(true, 0.9))

	report, err := f.detector(DefaultConfig()).DetectForModule(context.Background(), y.ID, f.project)
	require.NoError(t, err)

	require.Len(t, report.Candidates, 1)
	assert.Equal(t, x.ID, report.Candidates[0].ModuleID)
	assert.GreaterOrEqual(t, report.Candidates[0].Similarity, 0.90)

	require.Len(t, report.EntityConflicts, 1)
	assert.GreaterOrEqual(t, report.EntityConflicts[0].OverlapScore, 0.70)
	assert.Len(t, report.EntityConflicts[0].Matches, 2)

	require.Len(t, report.Conflicts, 1)
	c := report.Conflicts[0]
	assert.Equal(t, y.ID, c.SourceModuleID)
	assert.Equal(t, x.ID, c.ConflictingModuleID)
	assert.Equal(t, x.DocumentID, c.ConflictingDocumentID)
	assert.Equal(t, models.ConflictContent, c.ConflictType)
	assert.Contains(t, []models.Severity{models.SeverityHigh, models.SeverityCritical}, c.Severity)
	assert.InDelta(t, 0.9, c.Confidence, 1e-9)
	assert.Equal(t, []string{"keep the newer limit"}, c.ResolutionSuggestions)

	assert.Equal(t, 1, report.Usage.Similarity.Calls)
	assert.Equal(t, 2, report.Usage.Entities.Calls)
	assert.Equal(t, 1, report.Usage.Confirmation.Calls)
	assert.Equal(t, 0, report.Dropped)
}

func TestDetectForModule_StagesNarrow(t *testing.T) {
	f := newFixture(t)
	x, y, z := f.rateLimitPair(t)
	w := f.module(t, "limits-copy", sharedText+"\nRate limit: 100 req/min for batch jobs.")
	f.embed(t, x, y, z, w)

	// w shares no entities with y, so it stops at stage 2
	f.oracle.On(routeEntities, func(req llm.Request) (string, error) {
		if strings.Contains(req.Prompt, "batch jobs") {
			return entitiesBody(Entity{Type: models.EntityPerson, Value: "ops team"}), nil
		}
		if strings.Contains(req.Prompt, "1000 req/min") {
			return entitiesBody(
				Entity{Type: models.EntityConcept, Value: "rate limit"},
				Entity{Type: models.EntitySpec, Value: "1000 req/min"},
			), nil
		}
		return entitiesBody(
			Entity{Type: models.EntityConcept, Value: "rate limit"},
			Entity{Type: models.EntitySpec, Value: "100 req/min"},
		), nil
	})
	f.oracle.OnText(routeConfirm, verdictBody(true, 0.95))

	report, err := f.detector(DefaultConfig()).DetectForModule(context.Background(), y.ID, uuid.Nil)
	require.NoError(t, err)

	stage1 := moduleIDs(report.Candidates, func(c Candidate) uuid.UUID { return c.ModuleID })
	stage2 := moduleIDs(report.EntityConflicts, func(c EntityConflict) uuid.UUID { return c.Candidate.ModuleID })
	stage3 := moduleIDs(report.Conflicts, func(c DetectedConflict) uuid.UUID { return c.ConflictingModuleID })

	assert.True(t, stage1[x.ID])
	assert.True(t, stage1[w.ID])
	assert.False(t, stage1[z.ID])
	assert.Len(t, stage2, 1)
	assert.Len(t, stage3, 1)
	for id := range stage3 {
		assert.True(t, stage2[id])
	}
	for id := range stage2 {
		assert.True(t, stage1[id])
	}
}

func TestDetectForModule_MaxCandidates(t *testing.T) {
	f := newFixture(t)
	source := f.module(t, "source", sharedText+"\nRate limit: 1000 req/min.")
	for i := 0; i < 4; i++ {
		m := f.module(t, "copy-"+string(rune('a'+i)), sharedText+"\nRate limit: 100 req/min.")
		f.embed(t, m)
	}
	f.oracle.OnText(routeEntities, entitiesBody(Entity{Type: models.EntityDate, Value: "2024"}))
	f.oracle.OnText(routeConfirm, verdictBody(false, 0.1))

	cfg := DefaultConfig()
	cfg.MaxCandidates = 2
	report, err := f.detector(cfg).DetectForModule(context.Background(), source.ID, f.project)
	require.NoError(t, err)
	assert.Len(t, report.Candidates, 2)
}

func TestDetectForModule_Errors(t *testing.T) {
	f := newFixture(t)
	_, y, _ := f.rateLimitPair(t)
	d := f.detector(DefaultConfig())

	_, err := d.DetectForModule(context.Background(), uuid.New(), f.project)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = d.DetectForModule(context.Background(), y.ID, uuid.New())
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestDetectForModule_NoCandidatesSkipsOracle(t *testing.T) {
	f := newFixture(t)
	x, y, z := f.rateLimitPair(t)
	f.embed(t, x, y)

	report, err := f.detector(DefaultConfig()).DetectForModule(context.Background(), z.ID, f.project)
	require.NoError(t, err)
	assert.Empty(t, report.Candidates)
	assert.Empty(t, report.Conflicts)
	assert.True(t, report.Usage.Entities.IsZero())
	assert.True(t, report.Usage.Confirmation.IsZero())
	assert.Empty(t, f.oracle.Calls())
}

func TestDetectForModule_LowConfidenceRejected(t *testing.T) {
	f := newFixture(t)
	x, y, _ := f.rateLimitPair(t)
	f.embed(t, x)
	f.scriptRateLimitEntities()
	f.oracle.OnText(routeConfirm, verdictBody(true, 0.5))

	report, err := f.detector(DefaultConfig()).DetectForModule(context.Background(), y.ID, f.project)
	require.NoError(t, err)
	assert.Len(t, report.EntityConflicts, 1)
	assert.Empty(t, report.Conflicts)
	assert.Equal(t, 1, report.Usage.Confirmation.Calls)
}

func TestDetectForModule_UnparseableConfirmationIsDropped(t *testing.T) {
	f := newFixture(t)
	x, y, _ := f.rateLimitPair(t)
	f.embed(t, x)
	f.scriptRateLimitEntities()
	f.oracle.OnText(routeConfirm, "I am not sure these conflict.")

	report, err := f.detector(DefaultConfig()).DetectForModule(context.Background(), y.ID, f.project)
	require.NoError(t, err)
	assert.Empty(t, report.Conflicts)
	assert.Equal(t, 1, report.Dropped)
}

func TestDetectForModule_UnparseableSourceEntitiesDropCandidates(t *testing.T) {
	f := newFixture(t)
	x, y, _ := f.rateLimitPair(t)
	f.embed(t, x)
	f.oracle.On(routeEntities, func(req llm.Request) (string, error) {
		if strings.Contains(req.Prompt, "1000 req/min") {
			return "The module mentions a limit.", nil
		}
		return entitiesBody(Entity{Type: models.EntitySpec, Value: "100 req/min"}), nil
	})

	report, err := f.detector(DefaultConfig()).DetectForModule(context.Background(), y.ID, f.project)
	require.NoError(t, err)
	assert.Len(t, report.Candidates, 1)
	assert.Empty(t, report.EntityConflicts)
	assert.Equal(t, 0, f.oracle.CallCount(routeConfirm))
	assert.Equal(t, 2, report.Dropped)
}

func TestDetectForModule_UnknownEntityTypeIsSkipped(t *testing.T) {
	f := newFixture(t)
	x, y, _ := f.rateLimitPair(t)
	f.embed(t, x)
	f.oracle.On(routeEntities, func(req llm.Request) (string, error) {
		value := "100 req/min"
		if strings.Contains(req.Prompt, "1000 req/min") {
			value = "1000 req/min"
		}
		return entitiesBody(
			Entity{Type: "rumour", Value: "limits may change"},
			Entity{Type: models.EntityConcept, Value: "rate limit"},
			Entity{Type: models.EntitySpec, Value: value},
		), nil
	})
	f.oracle.OnText(routeConfirm, verdictBody(true, 0.9))

	report, err := f.detector(DefaultConfig()).DetectForModule(context.Background(), y.ID, f.project)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Dropped)
	require.Len(t, report.EntityConflicts, 1)
	assert.Len(t, report.EntityConflicts[0].Matches, 2)
	assert.Len(t, report.Conflicts, 1)
}

func TestMatchEntities(t *testing.T) {
	spec := func(v string) Entity { return Entity{Type: models.EntitySpec, Value: v} }

	tests := []struct {
		name      string
		source    []Entity
		candidate []Entity
		want      int
	}{
		{"differing limits", []Entity{spec("1000 req/min")}, []Entity{spec("100 req/min")}, 1},
		{"containment", []Entity{{Type: models.EntityConcept, Value: "Rate limit"}}, []Entity{{Type: models.EntityConcept, Value: "rate limiting"}}, 1},
		{"different units", []Entity{spec("100 req/min")}, []Entity{spec("5 GB")}, 0},
		{"bare numbers", []Entity{spec("100")}, []Entity{spec("250")}, 0},
		{"type mismatch", []Entity{spec("100 req/min")}, []Entity{{Type: models.EntityMetric, Value: "1000 req/min"}}, 0},
		{"shared context", []Entity{{Type: models.EntityDate, Value: "2023-01-01", Context: "end of support"}},
			[]Entity{{Type: models.EntityDate, Value: "2024-06-30", Context: "End of support"}}, 1},
		{"one to one", []Entity{spec("100 req/min"), spec("200 req/min")}, []Entity{spec("1000 req/min")}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, MatchEntities(tt.source, tt.candidate), tt.want)
		})
	}
}

func TestDetectForModule_OracleUnavailableAborts(t *testing.T) {
	f := newFixture(t)
	x, y, _ := f.rateLimitPair(t)
	f.embed(t, x)
	f.scriptRateLimitEntities()

	_, err := f.detector(DefaultConfig()).DetectForModule(context.Background(), y.ID, f.project)
	assert.ErrorIs(t, err, models.ErrOracleUnavailable)
}

func TestDetectProject_DeduplicatesPairs(t *testing.T) {
	f := newFixture(t)
	f.rateLimitPair(t)
	f.scriptRateLimitEntities()
	f.oracle.OnText(routeConfirm, verdictBody(true, 0.9))

	cfg := DefaultConfig()
	cfg.Workers = 1
	report, err := f.detector(cfg).DetectProject(context.Background(), f.project, ProjectOptions{})
	require.NoError(t, err)

	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, 3, report.Summary.ModulesScanned)
	assert.Equal(t, 0, report.Summary.ModulesFailed)
	assert.Equal(t, 1, report.Summary.Conflicts)
	assert.Equal(t, 2, report.Summary.Candidates)
	assert.Equal(t, 1, report.Summary.BySeverity[models.SeverityHigh])

	// the shared cache extracts each module once across the scan
	assert.Equal(t, 2, f.oracle.CallCount(routeEntities))
	assert.Equal(t, 2, f.oracle.CallCount(routeConfirm))
	assert.Equal(t, 3, report.Usage.Similarity.Calls)
	assert.Equal(t, report.Usage.Total(), report.Total)
}

func TestDetectProject_WorkerPool(t *testing.T) {
	f := newFixture(t)
	f.rateLimitPair(t)
	f.module(t, "limits-v3", sharedText+"\nRate limit: 5000 req/min.")
	f.oracle.On(routeEntities, func(req llm.Request) (string, error) {
		return entitiesBody(Entity{Type: models.EntityConcept, Value: "rate limit"}), nil
	})
	f.oracle.OnText(routeConfirm, verdictBody(true, 0.8))

	report, err := f.detector(DefaultConfig()).DetectProject(context.Background(), f.project, ProjectOptions{})
	require.NoError(t, err)

	// three mutually similar modules make three distinct pairs
	assert.Len(t, report.Conflicts, 3)
	seen := map[string]bool{}
	for _, c := range report.Conflicts {
		assert.False(t, seen[c.PairKey()])
		seen[c.PairKey()] = true
	}
}

func TestDetectProject_GroundedOnlyAndLimit(t *testing.T) {
	f := newFixture(t)
	x, y, _ := f.rateLimitPair(t)
	require.NoError(t, f.store.Modules().SetGrounded(context.Background(), x.ID, true))
	f.scriptRateLimitEntities()
	f.oracle.OnText(routeConfirm, verdictBody(true, 0.9))

	report, err := f.detector(DefaultConfig()).DetectProject(context.Background(), f.project, ProjectOptions{GroundedOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.ModulesScanned)
	assert.Empty(t, report.Conflicts)

	require.NoError(t, f.store.Modules().SetGrounded(context.Background(), y.ID, true))
	report, err = f.detector(DefaultConfig()).DetectProject(context.Background(), f.project, ProjectOptions{GroundedOnly: true})
	require.NoError(t, err)
	assert.Len(t, report.Conflicts, 1)

	limited, err := f.detector(DefaultConfig()).DetectProject(context.Background(), f.project, ProjectOptions{MaxModules: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, limited.Summary.ModulesScanned)
}

func TestDetectProject_ReportsFailedModules(t *testing.T) {
	f := newFixture(t)
	f.rateLimitPair(t)
	blank := f.module(t, "blank", "   ")
	f.scriptRateLimitEntities()
	f.oracle.OnText(routeConfirm, verdictBody(true, 0.9))

	report, err := f.detector(DefaultConfig()).DetectProject(context.Background(), f.project, ProjectOptions{})
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, blank.ID, report.Failures[0].ModuleID)
	assert.Equal(t, 1, report.Summary.ModulesFailed)
	assert.Len(t, report.Conflicts, 1)
}

func TestDetectProject_OracleUnavailableAborts(t *testing.T) {
	f := newFixture(t)
	f.rateLimitPair(t)
	f.fake.Err = errors.Join(models.ErrOracleUnavailable, errors.New("503"))

	_, err := f.detector(DefaultConfig()).DetectProject(context.Background(), f.project, ProjectOptions{})
	assert.ErrorIs(t, err, models.ErrOracleUnavailable)
}

func TestStore_SkipsActivePairs(t *testing.T) {
	f := newFixture(t)
	x, y, _ := f.rateLimitPair(t)
	d := f.detector(DefaultConfig())
	ctx := context.Background()

	detected := DetectedConflict{
		ProjectID:           f.project,
		SourceModuleID:      y.ID,
		ConflictingModuleID: x.ID,
		ConflictType:        models.ConflictContent,
		Severity:            models.SeverityHigh,
		Confidence:          0.9,
	}
	reversed := detected
	reversed.SourceModuleID, reversed.ConflictingModuleID = x.ID, y.ID

	res, err := d.Store(ctx, []DetectedConflict{detected, reversed})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.IDs, 1)

	stored, err := d.Get(ctx, res.IDs[0])
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, stored.Status)
	assert.Equal(t, detected.PairKey(), stored.PairKey)

	_, err = d.Acknowledge(ctx, stored.ID)
	require.NoError(t, err)
	res, err = d.Store(ctx, []DetectedConflict{detected})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)

	stored.Status = models.StatusResolved
	require.NoError(t, f.store.Conflicts().Update(ctx, stored))
	res, err = d.Store(ctx, []DetectedConflict{detected})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	all, err := d.List(ctx, f.project, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	open, err := d.List(ctx, f.project, models.StatusOpen)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestAcknowledge(t *testing.T) {
	f := newFixture(t)
	x, y, _ := f.rateLimitPair(t)
	d := f.detector(DefaultConfig())
	ctx := context.Background()

	c := &models.PersistedConflict{ProjectID: f.project, ModuleID: x.ID, ConflictingModuleID: y.ID}
	require.NoError(t, f.store.Conflicts().Create(ctx, c))

	got, err := d.Acknowledge(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAcknowledged, got.Status)

	got, err = d.Acknowledge(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAcknowledged, got.Status)

	got.Status = models.StatusResolved
	require.NoError(t, f.store.Conflicts().Update(ctx, got))
	_, err = d.Acknowledge(ctx, c.ID)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = d.Acknowledge(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

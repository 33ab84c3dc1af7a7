package resolution

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/todmy/docguard/internal/conflict"
	"github.com/todmy/docguard/internal/decompose"
	"github.com/todmy/docguard/internal/embeddings"
	"github.com/todmy/docguard/internal/embeddings/embeddingstest"
	"github.com/todmy/docguard/internal/ingest"
	"github.com/todmy/docguard/internal/llm"
	"github.com/todmy/docguard/internal/llm/llmtest"
	"github.com/todmy/docguard/internal/storage/memstore"
	"github.com/todmy/docguard/pkg/models"
)

const gatewayDoc = `# Limits (legacy)

The public gateway protects every tenant with a request quota enforced per API key.
Clients that exceed the quota receive status 429 together with a Retry-After header
and should back off before sending further traffic to the gateway endpoints.
Rate limit: 100 req/min.

# Limits (current)

The public gateway protects every tenant with a request quota enforced per API key.
Clients that exceed the quota receive status 429 together with a Retry-After header
and should back off before sending further traffic to the gateway endpoints.
Rate limit: 1000 req/min.
`

func entityAnswer(spec string) string {
	raw, _ := json.Marshal(map[string]any{"entities": []map[string]string{
		{"type": "concept", "value": "rate limit"},
		{"type": "spec", "value": spec},
	}})
	return llmtest.Fenced(string(raw))
}

func TestPipeline_DetectAndReplace(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	index := embeddings.NewIndex(store.Embeddings(), embeddingstest.New())
	project := uuid.New()

	oracle := llmtest.New().
		On("extract typed factual entities", func(req llm.Request) (string, error) {
			if strings.Contains(req.Prompt, "1000 req/min") {
				return entityAnswer("1000 req/min"), nil
			}
			return entityAnswer("100 req/min"), nil
		}).
		OnText("contradict each other", llmtest.Fenced(`{
			"isConflict": true, "conflictType": "content", "severity": "high", "confidence": 0.92,
			"evidence": "100 req/min vs 1000 req/min", "resolutionSuggestions": ["replace the legacy limit"]
		}`))

	pipeline := ingest.NewPipeline(store.Documents(), store.Modules(), decompose.New(nil, nil), index, nil)
	ingested, err := pipeline.Ingest(ctx, ingest.Request{
		ProjectID: project,
		Path:      "docs/gateway.md",
		Content:   gatewayDoc,
		Options:   decompose.Options{PreserveStructure: true},
	})
	require.NoError(t, err)
	require.Len(t, ingested.Modules, 2)
	x, y := ingested.Modules[0], ingested.Modules[1]

	detector := conflict.NewDetector(store.Modules(), store.Conflicts(), index, oracle, conflict.DefaultConfig(), nil)
	report, err := detector.DetectForModule(ctx, y.ID, project)
	require.NoError(t, err)

	require.Len(t, report.Candidates, 1)
	assert.GreaterOrEqual(t, report.Candidates[0].Similarity, 0.90)
	require.Len(t, report.EntityConflicts, 1)
	assert.GreaterOrEqual(t, report.EntityConflicts[0].OverlapScore, 0.70)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, models.ConflictContent, report.Conflicts[0].ConflictType)
	assert.Contains(t, []models.Severity{models.SeverityHigh, models.SeverityCritical}, report.Conflicts[0].Severity)

	stored, err := detector.Store(ctx, report.Conflicts)
	require.NoError(t, err)
	require.Equal(t, 1, stored.Created)

	engine := NewEngine(store.Modules(), store.Conflicts(), store.Resolutions(), index, oracle, nil)
	_, err = engine.Apply(ctx, ApplyRequest{
		ConflictID:    stored.IDs[0],
		Strategy:      models.StrategyReplace,
		CustomContent: y.Content,
	})
	require.NoError(t, err)

	_, err = store.Modules().GetByID(ctx, x.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	remaining, err := store.Modules().GetByDocumentID(ctx, ingested.Document.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Contains(t, remaining[0].Content, "1000 req/min")
	assert.NotContains(t, remaining[0].Content, "100 req/min.")
}

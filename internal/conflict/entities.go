package conflict

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/todmy/docguard/internal/llm"
	"github.com/todmy/docguard/pkg/models"
)

const entitySystem = `You extract typed factual entities from technical documentation:
endpoints, versions, dates, concepts, numeric specifications, configuration keys,
dependencies, people and metrics. Copy values verbatim; do not infer facts.`

const entitySchema = `{
  "entities": [
    {
      "type": "api_endpoint|version|date|concept|spec|configuration|dependency|person|metric",
      "value": "verbatim value",
      "context": "short surrounding phrase"
    }
  ]
}`

type entityResponse struct {
	Entities []struct {
		Type    string `json:"type"`
		Value   string `json:"value"`
		Context string `json:"context"`
	} `json:"entities"`

	parsed  []Entity
	skipped []string
}

// Validate closes entity types. Entities of unknown type or with an empty
// value are skipped; the rest of the answer stays usable.
func (r *entityResponse) Validate() error {
	r.parsed = make([]Entity, 0, len(r.Entities))
	r.skipped = nil
	for _, e := range r.Entities {
		t, err := models.ParseEntityType(e.Type)
		if err != nil {
			r.skipped = append(r.skipped, e.Type)
			continue
		}
		value := strings.TrimSpace(e.Value)
		if value == "" {
			continue
		}
		r.parsed = append(r.parsed, Entity{Type: t, Value: value, Context: strings.TrimSpace(e.Context)})
	}
	return nil
}

// ExtractEntities runs one extraction call over content
func ExtractEntities(ctx context.Context, gen llm.Generator, content string) ([]Entity, models.Usage, error) {
	entities, _, usage, err := extractEntities(ctx, gen, content)
	return entities, usage, err
}

// extractEntities also returns the unknown types it skipped
func extractEntities(ctx context.Context, gen llm.Generator, content string) ([]Entity, []string, models.Usage, error) {
	resp, usage, err := llm.GenerateJSON[entityResponse](ctx, gen, llm.Request{
		System: entitySystem,
		Prompt: "Extract the entities from this module:\n\n" + content,
		Schema: entitySchema,
	})
	if err != nil {
		return nil, nil, usage, err
	}
	return resp.parsed, resp.skipped, usage, nil
}

// entityCache memoizes extraction by content hash for one scan
type entityCache struct {
	mu      sync.Mutex
	entries map[string][]Entity
}

func newEntityCache() *entityCache {
	return &entityCache{entries: make(map[string][]Entity)}
}

func (c *entityCache) get(hash string) ([]Entity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[hash]
	return e, ok
}

func (c *entityCache) put(hash string, entities []Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[hash] = entities
}

// extractBatch extracts entities for every module in fixed-size batches with
// a pause between batches. Modules whose answer cannot be parsed are absent
// from the result; an unavailable oracle fails the whole call.
func (d *Detector) extractBatch(ctx context.Context, modules []*models.Module, cache *entityCache) (map[string][]Entity, models.Usage, int, error) {
	out := make(map[string][]Entity, len(modules))
	var usage models.Usage
	dropped := 0

	var pending []*models.Module
	seen := make(map[string]bool)
	for _, m := range modules {
		if seen[m.ContentHash] {
			continue
		}
		seen[m.ContentHash] = true
		if e, ok := cache.get(m.ContentHash); ok {
			out[m.ContentHash] = e
			continue
		}
		pending = append(pending, m)
	}

	var mu sync.Mutex
	for start := 0; start < len(pending); start += d.cfg.EntityBatchSize {
		if start > 0 {
			if err := d.sleep(ctx, d.cfg.EntityBatchDelay); err != nil {
				return nil, usage, dropped, err
			}
		}
		end := start + d.cfg.EntityBatchSize
		if end > len(pending) {
			end = len(pending)
		}

		var g errgroup.Group
		for _, m := range pending[start:end] {
			g.Go(func() error {
				entities, skipped, u, err := extractEntities(ctx, d.gen, m.Content)

				mu.Lock()
				defer mu.Unlock()
				usage.Add(u)

				if err != nil {
					if errors.Is(err, models.ErrOracleParse) {
						d.logger.Warn("entity extraction dropped",
							zap.String("module_id", m.ID.String()),
							zap.String("stage", "entities"),
							zap.Error(err),
						)
						dropped++
						return nil
					}
					return fmt.Errorf("extract entities for %s: %w", m.ID, err)
				}

				if len(skipped) > 0 {
					d.logger.Warn("skipped entities of unknown type",
						zap.String("module_id", m.ID.String()),
						zap.String("stage", "entities"),
						zap.Strings("types", skipped),
					)
				}
				out[m.ContentHash] = entities
				cache.put(m.ContentHash, entities)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, usage, dropped, err
		}
	}

	return out, usage, dropped, nil
}

// MatchEntities pairs entities one-to-one. Two entities of the same type
// match when one value contains the other ignoring case, when both carry the
// same non-empty context, or, for quantitative types, when their values agree
// once numbers are removed ("100 req/min" and "1000 req/min" both state a
// req/min figure).
func MatchEntities(source, candidate []Entity) []EntityMatch {
	used := make([]bool, len(candidate))
	var matches []EntityMatch
	for _, s := range source {
		for j, c := range candidate {
			if used[j] || !sameSubject(s, c) {
				continue
			}
			used[j] = true
			matches = append(matches, EntityMatch{Source: s, Candidate: c})
			break
		}
	}
	return matches
}

func sameSubject(a, b Entity) bool {
	if a.Type != b.Type {
		return false
	}
	av, bv := strings.ToLower(a.Value), strings.ToLower(b.Value)
	if strings.Contains(av, bv) || strings.Contains(bv, av) {
		return true
	}
	if a.Context != "" && strings.EqualFold(a.Context, b.Context) {
		return true
	}
	if quantitative(a.Type) {
		ak := subjectKey(av)
		return ak != "" && ak == subjectKey(bv)
	}
	return false
}

func quantitative(t models.EntityType) bool {
	switch t {
	case models.EntitySpec, models.EntityVersion, models.EntityConfiguration, models.EntityMetric:
		return true
	}
	return false
}

// subjectKey drops digits and number punctuation and keeps the words. It is
// "" when no letter remains, so bare numbers never match each other.
func subjectKey(v string) string {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == '.' || r == ',' {
			return ' '
		}
		return r
	}, v)
	key := strings.Join(strings.Fields(stripped), " ")
	if strings.IndexFunc(key, unicode.IsLetter) < 0 {
		return ""
	}
	return key
}

// OverlapScore is 2*matches / (|source| + |candidate|)
func OverlapScore(matches, sourceCount, candidateCount int) float64 {
	if sourceCount+candidateCount == 0 {
		return 0
	}
	return 2 * float64(matches) / float64(sourceCount+candidateCount)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

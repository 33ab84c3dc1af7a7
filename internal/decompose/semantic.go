package decompose

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/todmy/docguard/internal/llm"
	"github.com/todmy/docguard/pkg/models"
)

const semanticSystem = `You split technical documentation into semantically coherent modules.
Each module must be independently understandable and group related sections.
Assign every section to a module. Use short kebab-case module keys.`

const semanticSchema = `{
  "summary": "one sentence describing the document",
  "modules": [
    {
      "moduleKey": "kebab-case-key",
      "title": "Module title",
      "description": "what the module covers",
      "sectionIndexes": [0, 1],
      "moduleType": "overview|concept|reference|guide|api|configuration|example|troubleshooting|other",
      "tags": ["tag"]
    }
  ]
}`

const previewChars = 200

type sectionInfo struct {
	Index   int    `json:"index"`
	Type    string `json:"type"`
	Heading string `json:"heading,omitempty"`
	Level   int    `json:"level,omitempty"`
	Lines   string `json:"lines"`
	Tokens  int    `json:"tokens"`
	Preview string `json:"preview"`
}

type semanticModule struct {
	ModuleKey      string   `json:"moduleKey"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	SectionIndexes []int    `json:"sectionIndexes"`
	ModuleType     string   `json:"moduleType"`
	Tags           []string `json:"tags"`
}

type semanticResponse struct {
	Summary string           `json:"summary"`
	Modules []semanticModule `json:"modules"`
}

// UnmarshalJSON also accepts a bare array of modules
func (r *semanticResponse) UnmarshalJSON(b []byte) error {
	if trimmed := bytes.TrimSpace(b); len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &r.Modules)
	}
	type plain semanticResponse
	return json.Unmarshal(b, (*plain)(r))
}

func (r *semanticResponse) Validate() error {
	if len(r.Modules) == 0 {
		return fmt.Errorf("no modules returned")
	}
	for i, m := range r.Modules {
		if strings.TrimSpace(m.ModuleKey) == "" && strings.TrimSpace(m.Title) == "" {
			return fmt.Errorf("module %d has neither key nor title", i)
		}
	}
	return nil
}

func (d *Decomposer) semanticModules(ctx context.Context, sections []models.RawSection, path string, opts Options) ([]*models.Module, string, models.Usage, error) {
	infos := make([]sectionInfo, len(sections))
	for i, s := range sections {
		preview := models.TruncateUTF8(s.Content, previewChars)
		infos[i] = sectionInfo{
			Index:   i,
			Type:    string(s.Type),
			Heading: s.HeadingText,
			Level:   s.HeadingLevel,
			Lines:   fmt.Sprintf("%d-%d", s.StartLine, s.EndLine),
			Tokens:  models.EstimateTokens(s.Content),
			Preview: preview,
		}
	}
	payload, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, "", models.Usage{}, err
	}

	prompt := fmt.Sprintf("Document: %s\nTarget: between %d and %d modules.\n\nSections:\n%s",
		path, opts.MinModules, opts.MaxModules, payload)

	resp, usage, err := llm.GenerateJSON[semanticResponse](ctx, d.gen, llm.Request{
		System: semanticSystem,
		Prompt: prompt,
		Schema: semanticSchema,
	})
	if err != nil {
		return nil, "", usage, fmt.Errorf("semantic decomposition: %w", err)
	}

	modules, err := assemble(resp.Modules, sections)
	if err != nil {
		return nil, "", usage, err
	}
	return modules, resp.Summary, usage, nil
}

// assemble builds modules from the oracle's section assignment.
// Any index that does not resolve to a section is fatal.
func assemble(assigned []semanticModule, sections []models.RawSection) ([]*models.Module, error) {
	modules := make([]*models.Module, 0, len(assigned))
	for i, a := range assigned {
		if len(a.SectionIndexes) == 0 {
			return nil, fmt.Errorf("%w: module %q maps to no sections", models.ErrOracleParse, a.ModuleKey)
		}

		idx := append([]int(nil), a.SectionIndexes...)
		sort.Ints(idx)
		idx = dedupInts(idx)

		var parts []string
		m := &models.Module{
			ModuleKey:   Slugify(a.ModuleKey),
			Title:       strings.TrimSpace(a.Title),
			Description: strings.TrimSpace(a.Description),
			ModuleType:  models.ParseModuleType(a.ModuleType),
			Order:       i,
			DependsOn:   []string{},
			Tags:        normalizeTags(a.Tags),
			IsActive:    true,
		}
		for _, j := range idx {
			if j < 0 || j >= len(sections) {
				return nil, fmt.Errorf("%w: module %q references section %d of %d",
					models.ErrOracleParse, a.ModuleKey, j, len(sections))
			}
			s := sections[j]
			parts = append(parts, s.Content)
			if m.StartLine == 0 || s.StartLine < m.StartLine {
				m.StartLine = s.StartLine
			}
			if s.EndLine > m.EndLine {
				m.EndLine = s.EndLine
			}
			if s.HeadingLevel > 0 && (m.HeadingLevel == 0 || s.HeadingLevel < m.HeadingLevel) {
				m.HeadingLevel = s.HeadingLevel
			}
		}

		if m.Title == "" {
			m.Title = a.ModuleKey
		}
		if m.ModuleKey == "" {
			m.ModuleKey = Slugify(m.Title)
		}
		m.SetContent(strings.Join(parts, "\n\n"))
		modules = append(modules, m)
	}
	return modules, nil
}

func dedupInts(sorted []int) []int {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}

func normalizeTags(tags []string) []string {
	out := []string{}
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Package decompose splits markdown documents into modules: structural
// parsing, module assignment (1:1 or oracle-driven), dependency mapping
// and size validation.
package decompose

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/todmy/docguard/internal/llm"
	"github.com/todmy/docguard/pkg/models"
)

const (
	DefaultMinModules = 5
	DefaultMaxModules = 15
)

// Options controls module assignment
type Options struct {
	MinModules int
	MaxModules int
	// PreserveStructure maps sections to modules 1:1 when they fit MaxModules
	PreserveStructure bool
}

func (o Options) withDefaults() Options {
	if o.MinModules <= 0 {
		o.MinModules = DefaultMinModules
	}
	if o.MaxModules <= 0 {
		o.MaxModules = DefaultMaxModules
	}
	if o.MinModules > o.MaxModules {
		o.MinModules = o.MaxModules
	}
	return o
}

// Mode names the assignment path that produced a result
type Mode string

const (
	ModePreserve Mode = "preserve_structure"
	ModeSemantic Mode = "semantic"
)

// Summary describes a decomposition
type Summary struct {
	Path         string `json:"path"`
	Mode         Mode   `json:"mode"`
	Overview     string `json:"overview,omitempty"`
	Sections     int    `json:"sections"`
	Modules      int    `json:"modules"`
	TotalTokens  int    `json:"total_tokens"`
	Dependencies int    `json:"dependencies"`
}

// Result is the output of Decompose
type Result struct {
	Modules  []*models.Module `json:"modules"`
	Summary  Summary          `json:"summary"`
	Usage    models.Usage     `json:"usage"`
	Warnings []Warning        `json:"warnings,omitempty"`
}

// Decomposer turns markdown into modules
type Decomposer struct {
	gen    llm.Generator
	logger *zap.Logger
}

// New creates a Decomposer. gen may be nil when only preserve-structure is used.
func New(gen llm.Generator, logger *zap.Logger) *Decomposer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decomposer{gen: gen, logger: logger}
}

// Decompose parses content and assigns its sections to modules.
// Modules come back without IDs; callers attach document and project.
func (d *Decomposer) Decompose(ctx context.Context, content, path string, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	sections := ParseSections(content)
	if len(sections) == 0 {
		return nil, fmt.Errorf("%w: document %q has no parseable sections", models.ErrInvalidInput, path)
	}

	result := &Result{Summary: Summary{Path: path, Sections: len(sections)}}

	if opts.PreserveStructure && len(sections) <= opts.MaxModules {
		result.Modules = preserveModules(sections)
		result.Summary.Mode = ModePreserve
	} else {
		if d.gen == nil {
			return nil, fmt.Errorf("%w: semantic decomposition needs a generator", models.ErrOracleUnavailable)
		}
		modules, overview, usage, err := d.semanticModules(ctx, sections, path, opts)
		result.Usage = usage
		if err != nil {
			return nil, err
		}
		result.Modules = modules
		result.Summary.Mode = ModeSemantic
		result.Summary.Overview = overview
		if n := len(modules); n < opts.MinModules || n > opts.MaxModules {
			result.Warnings = append(result.Warnings, Warning{
				Kind:    WarningModuleCount,
				Message: fmt.Sprintf("oracle returned %d modules, expected %d-%d", n, opts.MinModules, opts.MaxModules),
			})
		}
	}

	MapDependencies(result.Modules)

	warnings, err := Validate(result.Modules)
	if err != nil {
		return nil, err
	}
	result.Warnings = append(result.Warnings, warnings...)

	for _, m := range result.Modules {
		result.Summary.TotalTokens += m.EstimatedTokens
		result.Summary.Dependencies += len(m.DependsOn)
	}
	result.Summary.Modules = len(result.Modules)

	d.logger.Info("decomposed document",
		zap.String("path", path),
		zap.String("mode", string(result.Summary.Mode)),
		zap.Int("sections", len(sections)),
		zap.Int("modules", len(result.Modules)),
		zap.Int("warnings", len(result.Warnings)),
	)

	return result, nil
}

func preserveModules(sections []models.RawSection) []*models.Module {
	keys := newKeySet()
	modules := make([]*models.Module, len(sections))
	for i, s := range sections {
		title := s.HeadingText
		if title == "" {
			title = fmt.Sprintf("%s (line %d)", capitalize(string(s.Type)), s.StartLine)
		}
		m := &models.Module{
			ModuleKey:    keys.unique(Slugify(title)),
			Title:        title,
			StartLine:    s.StartLine,
			EndLine:      s.EndLine,
			HeadingLevel: s.HeadingLevel,
			ModuleType:   inferModuleType(s),
			Order:        i,
			DependsOn:    []string{},
			Tags:         []string{},
			IsActive:     true,
		}
		m.SetContent(s.Content)
		modules[i] = m
	}
	return modules
}

func inferModuleType(s models.RawSection) models.ModuleType {
	switch s.Type {
	case models.SectionCode:
		return models.ModuleExample
	case models.SectionTable:
		return models.ModuleReference
	case models.SectionList, models.SectionParagraph:
		return models.ModuleOther
	}

	h := strings.ToLower(s.HeadingText)
	switch {
	case containsAny(h, "overview", "introduction", "intro", "about"):
		return models.ModuleOverview
	case containsAny(h, "troubleshoot", "faq", "known issue"):
		return models.ModuleTroubleshoot
	case containsAny(h, "install", "setup", "getting started", "guide", "tutorial", "how to"):
		return models.ModuleGuide
	case containsAny(h, "api", "endpoint"):
		return models.ModuleAPI
	case containsAny(h, "config", "setting", "environment"):
		return models.ModuleConfig
	case containsAny(h, "example", "sample"):
		return models.ModuleExample
	case containsAny(h, "reference", "limit", "spec"):
		return models.ModuleReference
	default:
		return models.ModuleConcept
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

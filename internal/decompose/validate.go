package decompose

import (
	"fmt"

	"github.com/todmy/docguard/pkg/models"
)

// Token band outside which a module is flagged
const (
	MinModuleTokens = 300
	MaxModuleTokens = 2000
)

// WarningKind classifies a validation warning
type WarningKind string

const (
	WarningTooSmall          WarningKind = "too_small"
	WarningTooLarge          WarningKind = "too_large"
	WarningUnknownDependency WarningKind = "unknown_dependency"
	WarningModuleCount       WarningKind = "module_count"
)

// Warning is a non-fatal finding attached to a decomposition
type Warning struct {
	ModuleKey string      `json:"module_key,omitempty"`
	Kind      WarningKind `json:"kind"`
	Message   string      `json:"message"`
}

// Validate checks module sizes and dependency references.
// Only duplicate module keys are an error.
func Validate(modules []*models.Module) ([]Warning, error) {
	keys := make(map[string]bool, len(modules))
	for _, m := range modules {
		if keys[m.ModuleKey] {
			return nil, fmt.Errorf("%w: %q", models.ErrDuplicateModuleKey, m.ModuleKey)
		}
		keys[m.ModuleKey] = true
	}

	var warnings []Warning
	for _, m := range modules {
		switch tokens := models.EstimateTokens(m.Content); {
		case tokens < MinModuleTokens:
			warnings = append(warnings, Warning{
				ModuleKey: m.ModuleKey,
				Kind:      WarningTooSmall,
				Message:   fmt.Sprintf("%d estimated tokens, below %d", tokens, MinModuleTokens),
			})
		case tokens > MaxModuleTokens:
			warnings = append(warnings, Warning{
				ModuleKey: m.ModuleKey,
				Kind:      WarningTooLarge,
				Message:   fmt.Sprintf("%d estimated tokens, above %d", tokens, MaxModuleTokens),
			})
		}

		for _, dep := range m.DependsOn {
			if !keys[dep] {
				warnings = append(warnings, Warning{
					ModuleKey: m.ModuleKey,
					Kind:      WarningUnknownDependency,
					Message:   fmt.Sprintf("depends on unknown module %q", dep),
				})
			}
		}
	}
	return warnings, nil
}

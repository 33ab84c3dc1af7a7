package models

import (
	"fmt"
	"strings"
)

// ModuleType classifies the role a module plays in its document
type ModuleType string

const (
	ModuleOverview     ModuleType = "overview"
	ModuleConcept      ModuleType = "concept"
	ModuleReference    ModuleType = "reference"
	ModuleGuide        ModuleType = "guide"
	ModuleAPI          ModuleType = "api"
	ModuleConfig       ModuleType = "configuration"
	ModuleExample      ModuleType = "example"
	ModuleTroubleshoot ModuleType = "troubleshooting"
	ModuleOther        ModuleType = "other"
)

var moduleTypes = []ModuleType{
	ModuleOverview, ModuleConcept, ModuleReference, ModuleGuide, ModuleAPI,
	ModuleConfig, ModuleExample, ModuleTroubleshoot, ModuleOther,
}

// ParseModuleType maps free text onto a known module type.
// Unknown values collapse to ModuleOther; module type is descriptive only.
func ParseModuleType(s string) ModuleType {
	v, err := parseEnum(s, moduleTypes)
	if err != nil {
		return ModuleOther
	}
	return v
}

// EntityType is the kind of fact extracted from a module in stage 2
type EntityType string

const (
	EntityAPIEndpoint   EntityType = "api_endpoint"
	EntityVersion       EntityType = "version"
	EntityDate          EntityType = "date"
	EntityConcept       EntityType = "concept"
	EntitySpec          EntityType = "spec"
	EntityConfiguration EntityType = "configuration"
	EntityDependency    EntityType = "dependency"
	EntityPerson        EntityType = "person"
	EntityMetric        EntityType = "metric"
)

var entityTypes = []EntityType{
	EntityAPIEndpoint, EntityVersion, EntityDate, EntityConcept, EntitySpec,
	EntityConfiguration, EntityDependency, EntityPerson, EntityMetric,
}

// ParseEntityType validates an entity type returned by the oracle
func ParseEntityType(s string) (EntityType, error) {
	return parseEnum(s, entityTypes)
}

// ConflictType is the classification assigned by stage 3
type ConflictType string

const (
	ConflictContent    ConflictType = "content"
	ConflictScope      ConflictType = "scope"
	ConflictVersion    ConflictType = "version"
	ConflictDependency ConflictType = "dependency"
)

var conflictTypes = []ConflictType{ConflictContent, ConflictScope, ConflictVersion, ConflictDependency}

// ParseConflictType validates a conflict type
func ParseConflictType(s string) (ConflictType, error) {
	return parseEnum(s, conflictTypes)
}

// Severity of a confirmed conflict
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

var severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// ParseSeverity validates a severity
func ParseSeverity(s string) (Severity, error) {
	return parseEnum(s, severities)
}

// Rank orders severities, critical highest
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Strategy is a remediation approach for a conflict
type Strategy string

const (
	StrategyMerge       Strategy = "merge"
	StrategyReplace     Strategy = "replace"
	StrategyDeprecate   Strategy = "deprecate"
	StrategyClarify     Strategy = "clarify"
	StrategySplitScope  Strategy = "split_scope"
	StrategyVersionBoth Strategy = "version_both"
)

var strategies = []Strategy{
	StrategyMerge, StrategyReplace, StrategyDeprecate,
	StrategyClarify, StrategySplitScope, StrategyVersionBoth,
}

// ParseStrategy validates a strategy
func ParseStrategy(s string) (Strategy, error) {
	return parseEnum(s, strategies)
}

// Impact estimates how disruptive a resolution is
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// ParseImpact validates an impact level
func ParseImpact(s string) (Impact, error) {
	return parseEnum(s, []Impact{ImpactLow, ImpactMedium, ImpactHigh})
}

// ImpactAction is what a resolution does to one module
type ImpactAction string

const (
	ActionUpdate   ImpactAction = "update"
	ActionDelete   ImpactAction = "delete"
	ActionCreate   ImpactAction = "create"
	ActionUnground ImpactAction = "unground"
)

// ConflictStatus is the lifecycle state of a persisted conflict
type ConflictStatus string

const (
	StatusOpen         ConflictStatus = "open"
	StatusAcknowledged ConflictStatus = "acknowledged"
	StatusResolved     ConflictStatus = "resolved"
)

// ParseConflictStatus validates a status filter
func ParseConflictStatus(s string) (ConflictStatus, error) {
	return parseEnum(s, []ConflictStatus{StatusOpen, StatusAcknowledged, StatusResolved})
}

func parseEnum[T ~string](s string, allowed []T) (T, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	for _, v := range allowed {
		if string(v) == norm {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w: unknown value %q", ErrInvalidInput, s)
}

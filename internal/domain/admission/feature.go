package admission

import (
	"strings"

	"github.com/cozmiclearning/backend/internal/domain/shared"
)

// Feature is a named operation gated by quota (each one triggers a paid AI call).
type Feature string

const (
	FeatureAskQuestion Feature = "ask_question"
	FeaturePractice    Feature = "practice"
	FeaturePowerGrid   Feature = "powergrid"
	FeatureLessonPlan  Feature = "lesson_plan"
)

// Features returns the static set of gated features.
func Features() []Feature {
	return []Feature{FeatureAskQuestion, FeaturePractice, FeaturePowerGrid, FeatureLessonPlan}
}

// String returns the string representation of Feature
func (f Feature) String() string {
	return string(f)
}

// IsValid returns true if the feature is part of the gated set
func (f Feature) IsValid() bool {
	switch f {
	case FeatureAskQuestion, FeaturePractice, FeaturePowerGrid, FeatureLessonPlan:
		return true
	}
	return false
}

// ParseFeature resolves a feature name from a route or config key.
func ParseFeature(s string) (Feature, error) {
	f := Feature(strings.ToLower(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", shared.ErrUnknownFeature
	}
	return f, nil
}

// Package rules evaluates declarative quality rules against a brief record.
//
// Rules are data, not code: they are loaded from JSON configuration and
// interpreted generically, so the rule set can evolve without recompiling.
package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Rule is one entry of the validation_rules list. Which fields are
// populated depends on RuleName; unknown rule names are skipped.
type Rule struct {
	RuleName                  string              `json:"rule_name"`
	Description               string              `json:"description,omitempty"`
	RequiredFields            []string            `json:"required_fields,omitempty"`
	OptionalRecommendedFields []string            `json:"optional_recommended_fields,omitempty"`
	BannedWords               map[string][]string `json:"banned_words,omitempty"`
	Conditions                []Condition         `json:"conditions,omitempty"`
	ColorValidation           *ColorValidation    `json:"color_validation,omitempty"`
}

// Condition is a logical-consistency check: when If holds and Then does
// not, the configured Error is reported.
type Condition struct {
	If    map[string]interface{} `json:"if"`
	Then  map[string]interface{} `json:"then"`
	Error string                 `json:"error,omitempty"`
}

// ColorValidation configures the color preservation heuristic.
type ColorValidation struct {
	RequiredColorPresence       bool     `json:"required_color_presence"`
	AvoidGenericColors          []string `json:"avoid_generic_colors,omitempty"`
	ColorPreservationIndicators []string `json:"color_preservation_indicators,omitempty"`
	WarningKeywords             []string `json:"warning_keywords,omitempty"`
}

// Result is the outcome of validating one record. IsValid is true exactly
// when Errors is empty; warnings never affect validity.
type Result struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Rule names understood by the engine.
const (
	RuleCompleteness      = "Check for Completeness"
	RuleVagueLanguage     = "Check for Vague Language"
	RuleContradictions    = "Check for Contradictions"
	RuleColorPreservation = "Check for Color Preservation"
)

// Engine applies a loaded rule set to records. It is stateless and safe
// for concurrent use.
type Engine struct {
	rules []Rule
}

func NewEngine(rules []Rule) *Engine {
	return &Engine{rules: rules}
}

type rulesFile struct {
	ValidationRules []Rule `json:"validation_rules"`
}

// Load reads a rule set from a JSON file of the shape
// {"validation_rules": [...]}.
func Load(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read validation rules %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds an engine from raw rule JSON.
func Parse(data []byte) (*Engine, error) {
	var file rulesFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse validation rules: %w", err)
	}
	if len(file.ValidationRules) == 0 {
		return nil, fmt.Errorf("validation rules contain no entries")
	}
	return NewEngine(file.ValidationRules), nil
}

// Rules returns the loaded rule set.
func (e *Engine) Rules() []Rule {
	return e.rules
}

// Validate applies every rule to the record and collects errors and
// warnings. A panic inside rule evaluation is reported as a single
// synthetic error instead of crashing the caller.
func (e *Engine) Validate(record map[string]interface{}) (result Result) {
	result = Result{IsValid: true, Errors: []string{}, Warnings: []string{}}

	defer func() {
		if r := recover(); r != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Validation system error: %v", r))
			result.IsValid = false
		}
	}()

	for _, rule := range e.rules {
		switch rule.RuleName {
		case RuleCompleteness:
			checkCompleteness(rule, record, &result)
		case RuleVagueLanguage:
			checkVagueLanguage(rule, record, &result)
		case RuleContradictions:
			checkContradictions(rule, record, &result)
		case RuleColorPreservation:
			checkColorPreservation(rule, record, &result)
		}
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

func checkCompleteness(rule Rule, record map[string]interface{}, result *Result) {
	for _, field := range rule.RequiredFields {
		if fieldMissing(record, field) {
			result.Errors = append(result.Errors,
				fmt.Sprintf("Required field '%s' is missing or empty", field))
		}
	}
	for _, field := range rule.OptionalRecommendedFields {
		if fieldMissing(record, field) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Recommended field '%s' is missing - brief quality may be improved with this field", field))
		}
	}
}

func checkVagueLanguage(rule Rule, record map[string]interface{}, result *Result) {
	// Stable field order keeps warning output deterministic.
	fields := make([]string, 0, len(rule.BannedWords))
	for field := range rule.BannedWords {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		value, ok := record[field]
		if !ok || value == nil {
			continue
		}
		text := strings.ToLower(stringify(value))
		if text == "" {
			continue
		}
		for _, banned := range rule.BannedWords[field] {
			if strings.Contains(text, strings.ToLower(banned)) {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("Vague term '%s' found in '%s'. Consider being more specific.", banned, field))
			}
		}
	}
}

func checkContradictions(rule Rule, record map[string]interface{}, result *Result) {
	for _, condition := range rule.Conditions {
		message := condition.Error
		if message == "" {
			message = "Logical inconsistency detected"
		}
		if checkCondition(condition.If, record) && !checkCondition(condition.Then, record) {
			result.Errors = append(result.Errors, message)
		}
	}
}

func checkColorPreservation(rule Rule, record map[string]interface{}, result *Result) {
	cv := rule.ColorValidation
	if cv == nil || !cv.RequiredColorPresence {
		return
	}

	value, ok := record["dominant_colors"]
	if !ok || value == nil || stringify(value) == "" {
		result.Warnings = append(result.Warnings,
			"No product colors specified - color preservation cannot be verified")
		return
	}

	colors := strings.ToLower(stringify(value))

	for _, generic := range cv.AvoidGenericColors {
		if strings.Contains(colors, generic) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Generic color term '%s' found - consider more specific product colors", generic))
		}
	}

	hasIndicator := containsAny(colors, cv.ColorPreservationIndicators)
	hasWarningKeyword := containsAny(colors, cv.WarningKeywords)

	if hasWarningKeyword {
		result.Errors = append(result.Errors,
			"Color stylization detected - ensure original product colors are preserved")
	} else if !hasIndicator && len(cv.ColorPreservationIndicators) > 0 {
		result.Warnings = append(result.Warnings,
			"Consider using more natural color descriptions to ensure authenticity")
	}
}

// checkCondition reports whether every entry of the condition mapping holds
// for the record. A referenced field that is absent or nil makes the whole
// condition false rather than an error. Comparator values {"min": x},
// {"max": x} and {"not_in": [...]} are recognized; anything else is an
// equality check. Values that cannot be coerced for a numeric comparison
// also make the condition false.
func checkCondition(condition map[string]interface{}, record map[string]interface{}) bool {
	for field, expected := range condition {
		actual, ok := record[field]
		if !ok || actual == nil {
			return false
		}

		comparator, isComparator := expected.(map[string]interface{})
		if !isComparator {
			if !valuesEqual(actual, expected) {
				return false
			}
			continue
		}

		if min, exists := comparator["min"]; exists {
			actualNum, okA := toFloat(actual)
			minNum, okM := toFloat(min)
			if !okA || !okM || actualNum < minNum {
				return false
			}
		}
		if max, exists := comparator["max"]; exists {
			actualNum, okA := toFloat(actual)
			maxNum, okM := toFloat(max)
			if !okA || !okM || actualNum > maxNum {
				return false
			}
		}
		if rawList, exists := comparator["not_in"]; exists {
			if list, ok := rawList.([]interface{}); ok {
				for _, item := range list {
					if valuesEqual(actual, item) {
						return false
					}
				}
			}
		}
	}

	return true
}

// valuesEqual compares two scalars, treating numerically equal values as
// equal even across types ("2.8" equals 2.8).
func valuesEqual(a, b interface{}) bool {
	aNum, okA := toFloat(a)
	bNum, okB := toFloat(b)
	if okA && okB {
		return aNum == bNum
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func fieldMissing(record map[string]interface{}, field string) bool {
	value, ok := record[field]
	if !ok || value == nil {
		return true
	}
	if s, isStr := value.(string); isStr && s == "" {
		return true
	}
	return false
}

func stringify(value interface{}) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

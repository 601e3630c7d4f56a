// Package composer renders the initial draft brief from a section
// structured template and a brief record.
//
// Templating is deliberately minimal: {{field}} placeholders are replaced
// with the record's string form, and unresolved placeholders become a
// bracketed [field] stand-in so missing data is visible in the draft
// instead of silently blank.
package composer

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Section is one named block of the template: an optional header line and
// ordered fragment lines containing {{field}} placeholders.
type Section struct {
	Header string   `json:"header,omitempty"`
	Lines  []string `json:"lines,omitempty"`
}

// Structure is the full template. Sections render in the declared
// canonical order; nil sections are skipped.
type Structure struct {
	Introduction           string   `json:"introduction,omitempty"`
	MainSubject            *Section `json:"main_subject,omitempty"`
	CompositionAndFraming  *Section `json:"composition_and_framing,omitempty"`
	LightingAndAtmosphere  *Section `json:"lighting_and_atmosphere,omitempty"`
	BackgroundAndSetting   *Section `json:"background_and_setting,omitempty"`
	CameraAndLens          *Section `json:"camera_and_lens,omitempty"`
	StyleAndPostProduction *Section `json:"style_and_post_production,omitempty"`
}

// sections returns the body sections in canonical rendering order.
func (s *Structure) sections() []*Section {
	return []*Section{
		s.MainSubject,
		s.CompositionAndFraming,
		s.LightingAndAtmosphere,
		s.BackgroundAndSetting,
		s.CameraAndLens,
		s.StyleAndPostProduction,
	}
}

type templateFile struct {
	PromptStructure *Structure `json:"prompt_structure"`
}

// LoadStructure reads the template from a JSON file of the shape
// {"prompt_structure": {...}}.
func LoadStructure(path string) (*Structure, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read brief template %s: %w", path, err)
	}
	return ParseStructure(data)
}

// ParseStructure builds a Structure from raw template JSON.
func ParseStructure(data []byte) (*Structure, error) {
	var file templateFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse brief template: %w", err)
	}
	if file.PromptStructure == nil {
		return nil, fmt.Errorf("brief template must contain 'prompt_structure' section")
	}
	return file.PromptStructure, nil
}

var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Compose renders the draft brief. Sections absent from the template are
// skipped, as are sections whose fragments all substitute to empty text,
// so a header is never emitted without a body. Pure function: same inputs
// always produce the same output.
func Compose(structure *Structure, record map[string]interface{}) string {
	var parts []string

	if structure.Introduction != "" {
		parts = append(parts, Substitute(structure.Introduction, record), "")
	}

	for _, section := range structure.sections() {
		text := renderSection(section, record)
		if text == "" {
			continue
		}
		parts = append(parts, text, "")
	}

	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func renderSection(section *Section, record map[string]interface{}) string {
	if section == nil {
		return ""
	}

	body := make([]string, 0, len(section.Lines))
	for _, line := range section.Lines {
		substituted := Substitute(line, record)
		if strings.TrimSpace(substituted) == "" {
			continue
		}
		body = append(body, substituted)
	}

	if len(body) == 0 {
		return ""
	}

	if section.Header != "" {
		body = append([]string{section.Header}, body...)
	}
	return strings.Join(body, "\n")
}

// Substitute replaces every {{name}} occurrence in text. Names present
// and non-nil in the record are replaced with their string form; anything
// else becomes [name].
func Substitute(text string, record map[string]interface{}) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := record[name]
		if !ok || value == nil {
			return "[" + name + "]"
		}
		if s, isStr := value.(string); isStr {
			return s
		}
		return fmt.Sprintf("%v", value)
	})
}

// internal/brief/composer/composer_test.go
package composer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func testStructure() *Structure {
	return &Structure{
		Introduction: "Create a professional product photography brief for {{product_name}}.",
		MainSubject: &Section{
			Header: "## Main Subject",
			Lines: []string{
				"Product: {{product_name}} in {{product_state}} condition.",
				"Key features: {{key_features}}",
			},
		},
		CompositionAndFraming: &Section{
			Header: "## Composition and Framing",
			Lines: []string{
				"Shot type: {{shot_type}}, framed as {{framing}}.",
			},
		},
		LightingAndAtmosphere: &Section{
			Header: "## Lighting and Atmosphere",
			Lines: []string{
				"Lighting: {{lighting_style}} with a {{mood}} mood.",
			},
		},
		BackgroundAndSetting: &Section{
			Header: "## Background and Setting",
			Lines: []string{
				"Environment: {{environment}}.",
				"Props: {{props}}",
			},
		},
		CameraAndLens: &Section{
			Header: "## Camera and Lens",
			Lines: []string{
				"Camera: {{camera_type}} with {{lens_type}} at f/{{aperture_value}}.",
			},
		},
		StyleAndPostProduction: &Section{
			Header: "## Style and Post-Production",
			Lines: []string{
				"Overall style: {{overall_style}}.",
			},
		},
	}
}

func testRecord() map[string]interface{} {
	return map[string]interface{}{
		"product_name":   "Chrono Solstice Watch",
		"product_state":  "pristine",
		"key_features":   "sapphire crystal, brushed titanium case",
		"shot_type":      "Eye-level",
		"framing":        "Close-Up",
		"lighting_style": "Studio Softbox",
		"mood":           "Clean and professional",
		"environment":    "Seamless studio backdrop",
		"props":          "dark slate pedestal",
		"camera_type":    "Hasselblad X2D 100C",
		"lens_type":      "85mm f/1.4",
		"aperture_value": "2.8",
		"overall_style":  "Professional product photography",
	}
}

// ==========================
// Substitution Tests
// ==========================

func TestSubstitute(t *testing.T) {
	record := map[string]interface{}{
		"product_name": "Walnut Desk Organizer",
		"iso_value":    100,
		"aperture":     2.8,
	}

	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "simple replacement",
			text: "Photograph the {{product_name}}.",
			want: "Photograph the Walnut Desk Organizer.",
		},
		{
			name: "numeric values use string form",
			text: "ISO {{iso_value}} at f/{{aperture}}",
			want: "ISO 100 at f/2.8",
		},
		{
			name: "missing field becomes bracketed placeholder",
			text: "Props: {{props}}",
			want: "Props: [props]",
		},
		{
			name: "repeated placeholder replaced everywhere",
			text: "{{product_name}} and again {{product_name}}",
			want: "Walnut Desk Organizer and again Walnut Desk Organizer",
		},
		{
			name: "text without placeholders unchanged",
			text: "No variables here.",
			want: "No variables here.",
		},
		{
			name: "malformed braces left alone",
			text: "{product_name} {{product name}}",
			want: "{product_name} {{product name}}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Substitute(tt.text, record))
		})
	}
}

func TestSubstitute_NilValueBecomesPlaceholder(t *testing.T) {
	record := map[string]interface{}{"props": nil}

	got := Substitute("Props: {{props}}", record)

	assert.Equal(t, "Props: [props]", got)
}

// ==========================
// Composition Tests
// ==========================

func TestCompose_FullRecord(t *testing.T) {
	got := Compose(testStructure(), testRecord())

	assert.True(t, strings.HasPrefix(got,
		"Create a professional product photography brief for Chrono Solstice Watch."))
	assert.Contains(t, got, "## Main Subject\nProduct: Chrono Solstice Watch in pristine condition.")
	assert.Contains(t, got, "Shot type: Eye-level, framed as Close-Up.")
	assert.Contains(t, got, "Camera: Hasselblad X2D 100C with 85mm f/1.4 at f/2.8.")
	assert.Contains(t, got, "Overall style: Professional product photography.")
	assert.NotContains(t, got, "{{")
}

func TestCompose_SectionOrder(t *testing.T) {
	got := Compose(testStructure(), testRecord())

	headers := []string{
		"## Main Subject",
		"## Composition and Framing",
		"## Lighting and Atmosphere",
		"## Background and Setting",
		"## Camera and Lens",
		"## Style and Post-Production",
	}

	last := -1
	for _, header := range headers {
		idx := strings.Index(got, header)
		require.GreaterOrEqual(t, idx, 0, "missing header %q", header)
		assert.Greater(t, idx, last, "header %q out of order", header)
		last = idx
	}
}

func TestCompose_SectionsSeparatedByBlankLine(t *testing.T) {
	got := Compose(testStructure(), testRecord())

	assert.Contains(t, got, "Key features: sapphire crystal, brushed titanium case\n\n## Composition and Framing")
	assert.False(t, strings.HasSuffix(got, "\n"))
	assert.False(t, strings.HasPrefix(got, "\n"))
}

func TestCompose_Idempotent(t *testing.T) {
	structure := testStructure()
	record := testRecord()

	first := Compose(structure, record)
	second := Compose(structure, record)

	assert.Equal(t, first, second)
}

func TestCompose_MissingFieldRendersBracketed(t *testing.T) {
	record := testRecord()
	delete(record, "props")

	got := Compose(testStructure(), record)

	assert.Contains(t, got, "Props: [props]")
}

func TestCompose_AbsentSectionsSkipped(t *testing.T) {
	structure := testStructure()
	structure.CameraAndLens = nil
	structure.StyleAndPostProduction = nil

	got := Compose(structure, testRecord())

	assert.NotContains(t, got, "## Camera and Lens")
	assert.NotContains(t, got, "## Style and Post-Production")
	assert.Contains(t, got, "## Background and Setting")
}

func TestCompose_EmptyBodySkipsHeader(t *testing.T) {
	structure := testStructure()
	structure.CameraAndLens = &Section{Header: "## Camera and Lens", Lines: []string{"", "   "}}

	got := Compose(structure, testRecord())

	assert.NotContains(t, got, "## Camera and Lens")
}

func TestCompose_HeaderOnlySectionSkipped(t *testing.T) {
	structure := testStructure()
	structure.LightingAndAtmosphere = &Section{Header: "## Lighting and Atmosphere"}

	got := Compose(structure, testRecord())

	assert.NotContains(t, got, "## Lighting and Atmosphere")
}

func TestCompose_IntroductionSubstituted(t *testing.T) {
	structure := &Structure{
		Introduction: "Brief for {{product_name}}.",
		MainSubject:  &Section{Lines: []string{"Subject: {{product_name}}"}},
	}
	record := map[string]interface{}{"product_name": "Ember Mug"}

	got := Compose(structure, record)

	assert.Equal(t, "Brief for Ember Mug.\n\nSubject: Ember Mug", got)
}

func TestCompose_EmptyStructure(t *testing.T) {
	got := Compose(&Structure{}, testRecord())

	assert.Equal(t, "", got)
}

// ==========================
// Loading Tests
// ==========================

func TestParseStructure(t *testing.T) {
	data := []byte(`{
		"prompt_structure": {
			"introduction": "Brief for {{product_name}}.",
			"main_subject": {
				"header": "## Main Subject",
				"lines": ["Product: {{product_name}}"]
			},
			"camera_and_lens": {
				"header": "## Camera and Lens",
				"lines": ["Camera: {{camera_type}}"]
			}
		}
	}`)

	structure, err := ParseStructure(data)

	require.NoError(t, err)
	assert.Equal(t, "Brief for {{product_name}}.", structure.Introduction)
	require.NotNil(t, structure.MainSubject)
	assert.Equal(t, "## Main Subject", structure.MainSubject.Header)
	assert.Nil(t, structure.LightingAndAtmosphere)
	require.NotNil(t, structure.CameraAndLens)
}

func TestParseStructure_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "malformed json", data: `{"prompt_structure": {`},
		{name: "missing wrapper", data: `{"introduction": "hello"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStructure([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoadStructure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "template.json")
	content := `{"prompt_structure": {"introduction": "Hi", "main_subject": {"lines": ["{{product_name}}"]}}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	structure, err := LoadStructure(path)

	require.NoError(t, err)
	got := Compose(structure, map[string]interface{}{"product_name": "Lamp"})
	assert.Equal(t, "Hi\n\nLamp", got)
}

func TestLoadStructure_FileMissing(t *testing.T) {
	_, err := LoadStructure(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

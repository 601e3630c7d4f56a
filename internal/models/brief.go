// internal/models/brief.go
package models

import "encoding/json"

// StructuredBrief is the flat field record produced by extraction and
// consumed by validation, composition, and enhancement. Every field is
// optional at the type level; the rule engine decides which ones are
// actually required. JSON tags match the keys the extraction service
// returns.
type StructuredBrief struct {
	// Main subject and story
	ProductName        *string `json:"product_name,omitempty"`
	UserRequest        *string `json:"user_request,omitempty"`
	ProductDescription *string `json:"product_description,omitempty"`
	KeyFeatures        *string `json:"key_features,omitempty"`
	ProductState       *string `json:"product_state,omitempty"`

	// Composition and framing
	ShotType          *string `json:"shot_type,omitempty"`
	Framing           *string `json:"framing,omitempty"`
	CompositionalRule *string `json:"compositional_rule,omitempty"`
	NegativeSpace     *string `json:"negative_space,omitempty"`

	// Lighting and atmosphere
	LightingStyle  *string `json:"lighting_style,omitempty"`
	KeyLightSetup  *string `json:"key_light_setup,omitempty"`
	FillLightSetup *string `json:"fill_light_setup,omitempty"`
	RimLightSetup  *string `json:"rim_light_setup,omitempty"`
	Mood           *string `json:"mood,omitempty"`

	// Background and setting
	Environment    *string `json:"environment,omitempty"`
	DominantColors *string `json:"dominant_colors,omitempty"`
	AccentColors   *string `json:"accent_colors,omitempty"`
	Props          *string `json:"props,omitempty"`

	// Camera and lens
	CameraType        *string  `json:"camera_type,omitempty"`
	LensType          *string  `json:"lens_type,omitempty"`
	ApertureValue     *float64 `json:"aperture_value,omitempty"`
	ShutterSpeedValue *int     `json:"shutter_speed_value,omitempty"`
	ISOValue          *int     `json:"iso_value,omitempty"`
	VisualEffect      *string  `json:"visual_effect,omitempty"`

	// Style and post-production
	OverallStyle           *string `json:"overall_style,omitempty"`
	PhotographerInfluences *string `json:"photographer_influences,omitempty"`

	// Advanced lighting
	LightTemperature  *string `json:"light_temperature,omitempty"`
	ShadowIntensity   *string `json:"shadow_intensity,omitempty"`
	HighlightControl  *string `json:"highlight_control,omitempty"`
	LightingDirection *string `json:"lighting_direction,omitempty"`
	AmbientLighting   *string `json:"ambient_lighting,omitempty"`

	// Advanced composition
	PerspectiveAngle *string `json:"perspective_angle,omitempty"`
	DepthLayers      *string `json:"depth_layers,omitempty"`
	LeadingLines     *string `json:"leading_lines,omitempty"`
	SymmetryType     *string `json:"symmetry_type,omitempty"`
	FocalEmphasis    *string `json:"focal_emphasis,omitempty"`

	// Technical details
	FocusMode          *string `json:"focus_mode,omitempty"`
	MeteringMode       *string `json:"metering_mode,omitempty"`
	WhiteBalance       *string `json:"white_balance,omitempty"`
	FileFormat         *string `json:"file_format,omitempty"`
	ImageStabilization *string `json:"image_stabilization,omitempty"`

	// Brand and marketing context
	TargetAudience             *string `json:"target_audience,omitempty"`
	BrandPersonality           *string `json:"brand_personality,omitempty"`
	UsagePurpose               *string `json:"usage_purpose,omitempty"`
	SeasonalContext            *string `json:"seasonal_context,omitempty"`
	CompetitiveDifferentiation *string `json:"competitive_differentiation,omitempty"`
}

// ToRecord converts the brief into the generic field mapping the rule
// engine and template composer operate on. Nil fields are omitted so
// "absent" and "null" look the same to the engine layers.
func (b *StructuredBrief) ToRecord() map[string]interface{} {
	record := map[string]interface{}{}
	data, err := json.Marshal(b)
	if err != nil {
		return record
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return map[string]interface{}{}
	}
	return record
}

// BriefFromRecord builds a typed brief from a generic field mapping.
// Values with an unexpected type are left unset rather than failing the
// whole conversion; the extraction service does not always honor the
// declared types.
func BriefFromRecord(record map[string]interface{}) *StructuredBrief {
	b := &StructuredBrief{}

	b.ProductName = stringField(record, "product_name")
	b.UserRequest = stringField(record, "user_request")
	b.ProductDescription = stringField(record, "product_description")
	b.KeyFeatures = stringField(record, "key_features")
	b.ProductState = stringField(record, "product_state")

	b.ShotType = stringField(record, "shot_type")
	b.Framing = stringField(record, "framing")
	b.CompositionalRule = stringField(record, "compositional_rule")
	b.NegativeSpace = stringField(record, "negative_space")

	b.LightingStyle = stringField(record, "lighting_style")
	b.KeyLightSetup = stringField(record, "key_light_setup")
	b.FillLightSetup = stringField(record, "fill_light_setup")
	b.RimLightSetup = stringField(record, "rim_light_setup")
	b.Mood = stringField(record, "mood")

	b.Environment = stringField(record, "environment")
	b.DominantColors = stringField(record, "dominant_colors")
	b.AccentColors = stringField(record, "accent_colors")
	b.Props = stringField(record, "props")

	b.CameraType = stringField(record, "camera_type")
	b.LensType = stringField(record, "lens_type")
	b.ApertureValue = floatField(record, "aperture_value")
	b.ShutterSpeedValue = intField(record, "shutter_speed_value")
	b.ISOValue = intField(record, "iso_value")
	b.VisualEffect = stringField(record, "visual_effect")

	b.OverallStyle = stringField(record, "overall_style")
	b.PhotographerInfluences = stringField(record, "photographer_influences")

	b.LightTemperature = stringField(record, "light_temperature")
	b.ShadowIntensity = stringField(record, "shadow_intensity")
	b.HighlightControl = stringField(record, "highlight_control")
	b.LightingDirection = stringField(record, "lighting_direction")
	b.AmbientLighting = stringField(record, "ambient_lighting")

	b.PerspectiveAngle = stringField(record, "perspective_angle")
	b.DepthLayers = stringField(record, "depth_layers")
	b.LeadingLines = stringField(record, "leading_lines")
	b.SymmetryType = stringField(record, "symmetry_type")
	b.FocalEmphasis = stringField(record, "focal_emphasis")

	b.FocusMode = stringField(record, "focus_mode")
	b.MeteringMode = stringField(record, "metering_mode")
	b.WhiteBalance = stringField(record, "white_balance")
	b.FileFormat = stringField(record, "file_format")
	b.ImageStabilization = stringField(record, "image_stabilization")

	b.TargetAudience = stringField(record, "target_audience")
	b.BrandPersonality = stringField(record, "brand_personality")
	b.UsagePurpose = stringField(record, "usage_purpose")
	b.SeasonalContext = stringField(record, "seasonal_context")
	b.CompetitiveDifferentiation = stringField(record, "competitive_differentiation")

	return b
}

func stringField(record map[string]interface{}, key string) *string {
	if v, ok := record[key].(string); ok {
		return &v
	}
	return nil
}

func floatField(record map[string]interface{}, key string) *float64 {
	switch v := record[key].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	}
	return nil
}

func intField(record map[string]interface{}, key string) *int {
	switch v := record[key].(type) {
	case int:
		return &v
	case float64:
		i := int(v)
		return &i
	}
	return nil
}

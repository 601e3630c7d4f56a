// Package extraction calls the GenAI service to pull structured brief
// fields out of free-form user text.
//
// The client is a single-shot capability: one call, one best-effort
// record. Semantic retries with corrective feedback belong to the
// orchestrator, which owns the attempt budget.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrRequestFailed     = errors.New("EXTRACTION_REQUEST_FAILED")
	ErrMalformedResponse = errors.New("EXTRACTION_MALFORMED_RESPONSE")
)

// Logger interface definition
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Config struct {
	BaseURL     string
	APIKey      string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration // zero means no transport-level bound
}

type Client struct {
	config *Config
	client *http.Client
	logger Logger
}

func NewClient(config *Config, log Logger) *Client {
	return &Client{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: log.With(map[string]interface{}{
			"component": "extraction-client",
		}),
	}
}

// recordSchema accepts a flat object of scalars. Arrays and nested
// objects violate the extraction contract; the downstream validator and
// composer expect flat scalar fields.
var recordSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"additionalProperties": {
		"type": ["string", "number", "integer", "boolean", "null"]
	}
}`)

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// Extract sends the request text to the GenAI service wrapped in the
// field extraction instruction and returns the parsed record. The request
// text is either the raw user request or a synthesized retry instruction;
// the client does not distinguish them.
func (c *Client) Extract(ctx context.Context, request string) (map[string]interface{}, error) {
	prompt := buildPrompt(request)

	c.logger.Info("requesting field extraction", map[string]interface{}{
		"requestLength": len(request),
		"promptLength":  len(prompt),
	})

	requestBody := map[string]interface{}{
		"prompt":      prompt,
		"max_tokens":  c.config.MaxTokens,
		"temperature": c.config.Temperature,
	}

	body, _ := json.Marshal(requestBody)
	req, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL+"/api/ai/generate", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
	}

	var apiResponse struct {
		Text       string   `json:"text"`
		Confidence float64  `json:"confidence"`
		Sources    []string `json:"sources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrRequestFailed, err)
	}

	record, err := c.parseRecord(strings.TrimSpace(apiResponse.Text))
	if err != nil {
		return nil, err
	}

	c.logger.Info("field extraction completed", map[string]interface{}{
		"extractedFields": len(record),
	})

	return record, nil
}

// parseRecord decodes the model's text into a record. Models sometimes
// wrap the JSON in prose, so a failed direct parse falls back to cutting
// the outermost {...} block out of the text before giving up.
func (c *Client) parseRecord(text string) (map[string]interface{}, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty response text", ErrMalformedResponse)
	}

	record, err := decodeRecord(text)
	if err != nil {
		c.logger.Warn("direct JSON parse failed, attempting recovery", map[string]interface{}{
			"parseError": err.Error(),
		})

		match := jsonObjectPattern.FindString(text)
		if match == "" {
			return nil, fmt.Errorf("%w: no JSON object in response", ErrMalformedResponse)
		}
		record, err = decodeRecord(match)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}

	if err := validateShape(record); err != nil {
		return nil, err
	}

	return record, nil
}

func decodeRecord(text string) (map[string]interface{}, error) {
	var record map[string]interface{}
	if err := json.Unmarshal([]byte(text), &record); err != nil {
		return nil, err
	}
	return record, nil
}

func validateShape(record map[string]interface{}) error {
	result, err := gojsonschema.Validate(recordSchema, gojsonschema.NewGoLoader(record))
	if err != nil {
		return fmt.Errorf("%w: schema check: %v", ErrMalformedResponse, err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return fmt.Errorf("%w: %s", ErrMalformedResponse, strings.Join(details, "; "))
	}
	return nil
}

func buildPrompt(request string) string {
	var parts []string

	parts = append(parts, "You are an expert photography analyst. Extract structured data from user requests and respond only with valid JSON. When requests are vague, make professional inferences and use industry-standard defaults. NEVER leave required fields as null.")
	parts = append(parts, "\nAnalyze this product photography request and extract the relevant information for a structured photography brief.")
	parts = append(parts, fmt.Sprintf("\nUser request: \"%s\"", request))

	parts = append(parts, "\nCRITICAL: You MUST provide values for these REQUIRED fields (never use null for these):")
	parts = append(parts, "- product_name: If unclear, infer from context or use \"Product\" as fallback")
	parts = append(parts, "- shot_type: Choose from [Eye-level, High-angle, Low-angle, Dutch-angle, Top-down flat lay]")
	parts = append(parts, "- framing: Choose from [Extreme Close-Up, Close-Up, Medium Shot, Full Shot]")
	parts = append(parts, "- lighting_style: Choose from [Studio Softbox, Hard light, Natural window light, Golden hour glow, Cinematic neon]")
	parts = append(parts, "- environment: Choose from [Seamless studio backdrop, Textured surface, Natural setting, Indoor setting]")

	parts = append(parts, "\nExtract information for ALL 46 fields below (ALL VALUES MUST BE STRINGS, NOT ARRAYS):")

	parts = append(parts, "\n# SECTION 1: Main Subject & Story")
	parts = append(parts, "product_name: Name of the product (REQUIRED - string, never null)")
	parts = append(parts, "product_description: Description of the product (string)")
	parts = append(parts, "key_features: Key features to highlight (string, comma-separated if multiple)")
	parts = append(parts, "product_state: State of the product (string, default: \"pristine\")")

	parts = append(parts, "\n# SECTION 2: Composition & Framing")
	parts = append(parts, "shot_type: Type of shot (REQUIRED - string, choose most appropriate)")
	parts = append(parts, "framing: Framing style (REQUIRED - string, choose most appropriate)")
	parts = append(parts, "compositional_rule: Compositional rule (string, default: \"Rule of Thirds\")")
	parts = append(parts, "negative_space: Negative space approach (string, default: \"Balanced\")")

	parts = append(parts, "\n# SECTION 3: Lighting & Atmosphere")
	parts = append(parts, "lighting_style: Lighting style (REQUIRED - string, choose most appropriate)")
	parts = append(parts, "key_light_setup: Key light setup description (string)")
	parts = append(parts, "fill_light_setup: Fill light setup description (string)")
	parts = append(parts, "rim_light_setup: Rim light setup description (string)")
	parts = append(parts, "mood: Overall mood (string, default: \"Clean and professional\")")

	parts = append(parts, "\n# SECTION 4: Background & Setting")
	parts = append(parts, "environment: Environment/background (REQUIRED - string, choose most appropriate)")
	parts = append(parts, "dominant_colors: Dominant color palette (string, comma-separated if multiple)")
	parts = append(parts, "accent_colors: Accent colors (string, comma-separated if multiple)")
	parts = append(parts, "props: Supporting props description (string)")

	parts = append(parts, "\n# SECTION 5: Camera & Lens")
	parts = append(parts, "camera_type: Camera type (string, default: \"Hasselblad X2D 100C\")")
	parts = append(parts, "lens_type: Lens type (string, default: \"85mm f/1.4\")")
	parts = append(parts, "aperture_value: Aperture f-number (number, default: 2.8)")
	parts = append(parts, "shutter_speed_value: Shutter speed denominator (number, default: 125)")
	parts = append(parts, "iso_value: ISO value (number, default: 100)")
	parts = append(parts, "visual_effect: Visual effect description (string)")

	parts = append(parts, "\n# SECTION 6: Style & Post-Production")
	parts = append(parts, "overall_style: Overall photographic style (string, default: \"Professional product photography\")")
	parts = append(parts, "photographer_influences: Photographer influences (string, comma-separated if multiple)")

	parts = append(parts, "\n# SECTION 7: Advanced Lighting (NEW)")
	parts = append(parts, "light_temperature: Light temperature (string, e.g. \"warm 3200K\", \"daylight 5600K\")")
	parts = append(parts, "shadow_intensity: Shadow intensity (string: \"soft\", \"hard\", \"medium\")")
	parts = append(parts, "highlight_control: Highlight control (string: \"preserved\", \"blown\", \"controlled\")")
	parts = append(parts, "lighting_direction: Lighting direction (string: \"front\", \"side\", \"back\", \"top\")")
	parts = append(parts, "ambient_lighting: Ambient lighting (string: \"studio\", \"natural\", \"mixed\")")

	parts = append(parts, "\n# SECTION 8: Advanced Composition (NEW)")
	parts = append(parts, "perspective_angle: Perspective angle (string: \"eye-level\", \"low-angle\", \"high-angle\")")
	parts = append(parts, "depth_layers: Depth layers (string describing foreground/midground/background)")
	parts = append(parts, "leading_lines: Leading lines (string: \"diagonal\", \"curved\", \"vertical\", \"none\")")
	parts = append(parts, "symmetry_type: Symmetry type (string: \"perfect\", \"asymmetrical\", \"radial\")")
	parts = append(parts, "focal_emphasis: Focal emphasis (string: \"center\", \"off-center\", \"multiple points\")")

	parts = append(parts, "\n# SECTION 9: Technical Details (NEW)")
	parts = append(parts, "focus_mode: Focus mode (string: \"manual\", \"single-point AF\", \"zone AF\")")
	parts = append(parts, "metering_mode: Metering mode (string: \"matrix\", \"center-weighted\", \"spot\")")
	parts = append(parts, "white_balance: White balance (string: \"auto\", \"daylight\", \"tungsten\", \"custom\")")
	parts = append(parts, "file_format: File format (string: \"RAW\", \"JPEG\", \"TIFF\")")
	parts = append(parts, "image_stabilization: Image stabilization (string: \"on\", \"off\", \"lens-based\", \"body-based\")")

	parts = append(parts, "\n# SECTION 10: Brand & Marketing Context (NEW)")
	parts = append(parts, "target_audience: Target audience (string: \"luxury\", \"mass market\", \"professional\")")
	parts = append(parts, "brand_personality: Brand personality (string: \"premium\", \"friendly\", \"innovative\")")
	parts = append(parts, "usage_purpose: Usage purpose (string: \"e-commerce\", \"advertising\", \"social media\")")
	parts = append(parts, "seasonal_context: Seasonal context (string: \"spring\", \"summer\", \"holiday\", \"evergreen\")")
	parts = append(parts, "competitive_differentiation: Competitive differentiation (string: unique selling points)")

	parts = append(parts, "\nIMPORTANT:")
	parts = append(parts, "- Respond ONLY with valid JSON containing ALL 46 fields")
	parts = append(parts, "- ALL text fields must be STRINGS, not arrays")
	parts = append(parts, "- Use comma-separated strings for multiple values (e.g. \"red, blue, gold\" not [\"red\", \"blue\", \"gold\"])")
	parts = append(parts, "- NEVER use null for any field - provide intelligent defaults")
	parts = append(parts, "- Use reasonable professional photography defaults when information is unclear")
	parts = append(parts, "- Make intelligent inferences based on the request context and product type")

	return strings.Join(parts, "\n")
}

// Package enhancement calls the GenAI service to rewrite a structured
// brief record into a long, section structured photography document.
//
// The full record is dispatched as JSON rather than pre-rendered text:
// structured data gives the model more freedom to reorganize and enrich
// content than post-editing a fixed draft would.
package enhancement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrTimeout       = errors.New("GENAI_TIMEOUT")
	ErrRequestFailed = errors.New("ENHANCEMENT_REQUEST_FAILED")
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
	MaxRetries  int
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration // per attempt; zero means no transport-level bound
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
			"component": "enhancement-client",
		}),
	}
}

// Enhance sends the structured record to the GenAI service and returns
// the rewritten document. Transport failures are retried with exponential
// backoff up to MaxRetries; there is no fallback document on failure.
func (c *Client) Enhance(ctx context.Context, record map[string]interface{}) (string, error) {
	instruction := buildInstruction(record)

	c.logger.Info("requesting brief enhancement", map[string]interface{}{
		"recordFields":      len(record),
		"instructionLength": len(instruction),
	})

	requestBody := map[string]interface{}{
		"prompt":      instruction,
		"max_tokens":  c.config.MaxTokens,
		"temperature": c.config.Temperature,
	}
	body, _ := json.Marshal(requestBody)

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			// Apply exponential backoff
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
				// Continue with retry
			case <-ctx.Done():
				return "", ErrTimeout
			}
		}

		// The request body is consumed on send, build a fresh request
		// for every attempt.
		req, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL+"/api/ai/generate", bytes.NewBuffer(body))
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrRequestFailed, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}

		resp, lastErr = c.client.Do(req)
		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			// For non-OK status codes, treat as error and retry
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
		}

		if ctx.Err() != nil {
			return "", ErrTimeout
		}
	}

	if lastErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("%w: %v", ErrRequestFailed, lastErr)
	}

	if resp == nil {
		return "", fmt.Errorf("%w: no successful response after retries", ErrRequestFailed)
	}
	defer resp.Body.Close()

	var apiResponse struct {
		Text       string   `json:"text"`
		Confidence float64  `json:"confidence"`
		Sources    []string `json:"sources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return "", fmt.Errorf("%w: decode error: %v", ErrRequestFailed, err)
	}

	document := strings.TrimSpace(apiResponse.Text)
	if document == "" {
		return "", fmt.Errorf("%w: empty document returned", ErrRequestFailed)
	}

	c.logger.Info("brief enhancement completed", map[string]interface{}{
		"documentLength": len(document),
		"wordCount":      len(strings.Fields(document)),
		"confidence":     apiResponse.Confidence,
	})

	return document, nil
}

// buildInstruction assembles the enhancement prompt: an elite product
// photographer persona, a strict English-only mandate, a product lock
// (the product itself and its colors must never be altered), the required
// document skeleton, and the structured record embedded as JSON.
func buildInstruction(record map[string]interface{}) string {
	var parts []string

	parts = append(parts, "MANDATORY OUTPUT LANGUAGE: ENGLISH. The entire output brief MUST be written in professional English, regardless of the language of the user's input.")
	parts = append(parts, "\nYou are an ELITE Product Photographer with 20+ years of world-class product photography experience. You have worked with luxury brands, directed award-winning campaigns, and your images are featured in top-tier publications. Your job is to enhance PHOTOGRAPHY QUALITY while NEVER MODIFYING THE PRODUCT ITSELF.")

	parts = append(parts, "\nNON-NEGOTIABLE REQUIREMENTS:")
	parts = append(parts, "- Write 100% in professional English only; any other language is forbidden")
	parts = append(parts, "- NEVER change product colors, shapes, or designs - only enhance lighting, composition, and camera techniques")
	parts = append(parts, "- The product must appear EXACTLY as it exists in reality; original product colors are preserved 100%")
	parts = append(parts, "- Short, basic, or incomplete briefs are forbidden - generate a COMPREHENSIVE, DETAILED brief")

	parts = append(parts, "\nYour output MUST follow this exact structure with extensive bullet points, sub-categories, and technical specifications:")
	parts = append(parts, "\n```markdown")
	parts = append(parts, "# **[Product Type] Photography Brief: [Product Name]**")
	parts = append(parts, "\n#### **1. Main Subject: Hero Shot of the [Product Name]**")
	parts = append(parts, "- **Product Details**: [Detailed physical description with materials, finishes, textures]")
	parts = append(parts, "- **Product State**: [Condition and presentation approach]")
	parts = append(parts, "- **Hero Features**: [Key elements to emphasize]")
	parts = append(parts, "- **Brand Positioning**: [Luxury positioning and target appeal]")
	parts = append(parts, "\n#### **2. Composition and Framing**")
	parts = append(parts, "- **Shot Type**: [Specific angle with creative justification]")
	parts = append(parts, "- **Framing**: [Detailed framing approach with technical reasoning]")
	parts = append(parts, "- **Compositional Rule**: [Specific rules with placement details]")
	parts = append(parts, "- **Negative Space**: [Background treatment and focus direction]")
	parts = append(parts, "- **Visual Hierarchy**: [How elements guide the viewer's eye]")
	parts = append(parts, "\n#### **3. Lighting and Atmosphere**")
	parts = append(parts, "- **Lighting Style**: [Overall lighting approach and mood]")
	parts = append(parts, "  - **Key Light**: [Specific equipment model, position, angle, and effect]")
	parts = append(parts, "  - **Fill Light**: [Equipment, position, power ratio, and purpose]")
	parts = append(parts, "  - **Rim Light**: [Equipment, positioning, and separation effect]")
	parts = append(parts, "- **Light Ratios**: [Technical ratios between key, fill, and rim]")
	parts = append(parts, "- **Color Temperature**: [Kelvin values and color consistency]")
	parts = append(parts, "- **Overall Mood**: [Atmospheric description and emotional impact]")
	parts = append(parts, "\n#### **4. Background and Setting**")
	parts = append(parts, "- **Environment**: [Detailed surface and backdrop description]")
	parts = append(parts, "- **Color Palette**: [Comprehensive color scheme with psychological impact]")
	parts = append(parts, "- **Supporting Props**: [Multiple props with detailed descriptions and placement reasoning]")
	parts = append(parts, "- **Texture Elements**: [Surface treatments and tactile qualities]")
	parts = append(parts, "\n#### **5. Camera and Lens Simulation**")
	parts = append(parts, "- **Camera Body**: [Specific professional camera model with technical justification]")
	parts = append(parts, "- **Lens**: [Exact lens specifications with optical characteristics]")
	parts = append(parts, "- **Camera Settings**: [Complete exposure triangle with technical reasoning]")
	parts = append(parts, "  - **Aperture**: [F-stop with depth of field justification]")
	parts = append(parts, "  - **Shutter Speed**: [Speed with motion control reasoning]")
	parts = append(parts, "  - **ISO**: [Value with noise/quality balance]")
	parts = append(parts, "- **Focus Strategy**: [Focus point placement and depth of field control]")
	parts = append(parts, "\n#### **6. Stylistic Enhancements**")
	parts = append(parts, "- **Visual Style References**: [Professional photographer influences]")
	parts = append(parts, "- **Emotional Impact**: [How colors, textures, and mood create feeling]")
	parts = append(parts, "- **Dynamic Composition**: [Leading lines, visual flow, eye movement]")
	parts = append(parts, "- **Brand Alignment**: [How style supports brand positioning]")
	parts = append(parts, "\n#### **7. Post-Processing and Color Grading**")
	parts = append(parts, "- **Color Grading**: [Comprehensive color treatment approach that keeps product colors authentic]")
	parts = append(parts, "- **Retouching Workflow**: [Step-by-step post-production process]")
	parts = append(parts, "- **Highlight Treatment**: [How highlights are refined]")
	parts = append(parts, "- **Shadow Detail**: [Shadow control and depth]")
	parts = append(parts, "\n### **Creative Rationale**")
	parts = append(parts, "[MANDATORY: Comprehensive 150+ word explanation in English of creative choices, technical decisions, brand strategy, and visual storytelling approach. Reference professional photographers and explain why each element serves the overall campaign objective.]")
	parts = append(parts, "```")

	parts = append(parts, "\nOUTPUT REQUIREMENTS:")
	parts = append(parts, "- MINIMUM 1,200 words total")
	parts = append(parts, "- MINIMUM 8 major sections with extensive bullet points")
	parts = append(parts, "- MINIMUM 3-5 bullet points per major category")
	parts = append(parts, "- MINIMUM 150-word Creative Rationale section")
	parts = append(parts, "- MANDATORY specific equipment models and technical specifications")

	dataJSON, _ := json.MarshalIndent(record, "", "  ")
	parts = append(parts, "\nCLIENT FOUNDATION DATA:")
	parts = append(parts, "```json")
	parts = append(parts, string(dataJSON))
	parts = append(parts, "```")

	parts = append(parts, "\nGenerate the most detailed, comprehensive photography brief possible. Every section must be extensively detailed with multiple bullet points, technical specifications, and professional reasoning.")

	return strings.Join(parts, "\n")
}

package illustrator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jhchen-tw/inbox-digest/internal/digest"
	"github.com/jhchen-tw/inbox-digest/internal/extract"
)

// Gemini exposes an OpenAI-compatible images endpoint for the Imagen models.
const imagesBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

// GeminiIllustrator generates one PNG per entry under <assets>/images and
// names it after the entry fingerprint, so reruns reuse the file instead of
// paying for a new generation.
type GeminiIllustrator struct {
	apiKey    string
	model     string
	size      string
	assetsDir string
	baseURL   string
	client    *http.Client
}

func NewGeminiIllustrator(apiKey, model, size, assetsDir string) *GeminiIllustrator {
	return &GeminiIllustrator{
		apiKey:    apiKey,
		model:     model,
		size:      size,
		assetsDir: assetsDir,
		baseURL:   imagesBaseURL,
		client:    &http.Client{Timeout: 120 * time.Second},
	}
}

// OpenAI images API request/response types

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

type imageResponse struct {
	Data  []imageData `json:"data"`
	Error *imageError `json:"error,omitempty"`
}

type imageData struct {
	B64JSON string `json:"b64_json"`
}

type imageError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (s *GeminiIllustrator) Illustrate(ctx context.Context, e *digest.Entry) (string, error) {
	name := e.Fingerprint
	if len(name) > 16 {
		name = name[:16]
	}
	rel := "images/" + name + ".png"
	abs := filepath.Join(s.assetsDir, "images", name+".png")

	if _, err := os.Stat(abs); err == nil {
		return rel, nil
	}

	png, err := s.generate(ctx, buildImagePrompt(e))
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("illustrator: create images dir: %w", err)
	}
	if err := os.WriteFile(abs, png, 0o644); err != nil {
		return "", fmt.Errorf("illustrator: write %s: %w", abs, err)
	}

	return rel, nil
}

func buildImagePrompt(e *digest.Entry) string {
	title := e.TranslatedTitle
	if title == "" {
		title = e.Title
	}
	prompt := fmt.Sprintf("Minimal, soft, calm news-app style illustration. Abstract shapes and gentle gradients, no text, no logos, no watermark, no people. Inspired by: %s.", title)
	if e.Summary != "" {
		prompt += " Context: " + extract.Truncate(e.Summary, 400)
	}
	return prompt
}

func (s *GeminiIllustrator) generate(ctx context.Context, prompt string) ([]byte, error) {
	reqBody := imageRequest{
		Model:          s.model,
		Prompt:         prompt,
		N:              1,
		Size:           s.size,
		ResponseFormat: "b64_json",
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("illustrator: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/images/generations", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("illustrator: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("illustrator: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("illustrator: failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("illustrator: unexpected status %d", resp.StatusCode)
	}

	var apiResp imageResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("illustrator: failed to parse response: %w", err)
	}

	if apiResp.Error != nil {
		return nil, fmt.Errorf("illustrator: API error: %s - %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	if len(apiResp.Data) == 0 || apiResp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("illustrator: empty response")
	}

	png, err := base64.StdEncoding.DecodeString(apiResp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("illustrator: failed to decode image data: %w", err)
	}
	return png, nil
}

package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiSummarizer uses the Gemini generateContent API.
type GeminiSummarizer struct {
	apiKey         string
	model          string
	targetLanguage string
	maxChars       int
	maxTokens      int
	baseURL        string
	client         *http.Client
}

func NewGeminiSummarizer(apiKey, model, targetLanguage string, maxChars, maxTokens int) *GeminiSummarizer {
	return &GeminiSummarizer{
		apiKey:         apiKey,
		model:          model,
		targetLanguage: targetLanguage,
		maxChars:       maxChars,
		maxTokens:      maxTokens,
		baseURL:        geminiBaseURL,
		client:         &http.Client{Timeout: 120 * time.Second},
	}
}

// Gemini API request/response types

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
	Error      *geminiError      `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (s *GeminiSummarizer) Summarize(ctx context.Context, title, text string) (*Result, error) {
	body, err := s.callAPI(ctx, buildPrompt(s.targetLanguage, title, text))
	if err != nil {
		return nil, err
	}

	r, err := parseResult(body)
	if err != nil {
		return nil, err
	}
	if err := sanitize(r, s.maxChars); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *GeminiSummarizer) callAPI(ctx context.Context, prompt string) (string, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
		// A low temperature keeps the two runs of a retried entry close to
		// each other; the JSON mime type suppresses markdown fences.
		GenerationConfig: geminiGenerationConfig{
			Temperature:      0.2,
			MaxOutputTokens:  s.maxTokens,
			ResponseMimeType: "application/json",
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("gemini: failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", s.baseURL, s.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("gemini: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gemini: failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini: unexpected status %d", resp.StatusCode)
	}

	var apiResp geminiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("gemini: failed to parse response: %w", err)
	}

	if apiResp.Error != nil {
		return "", fmt.Errorf("gemini: API error: %s - %s", apiResp.Error.Status, apiResp.Error.Message)
	}

	if len(apiResp.Candidates) == 0 {
		return "", fmt.Errorf("gemini: empty response")
	}

	cand := apiResp.Candidates[0]
	if cand.FinishReason == "SAFETY" {
		return "", fmt.Errorf("gemini: content blocked (finish reason SAFETY)")
	}

	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("gemini: empty candidate content")
	}
	return sb.String(), nil
}

package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func geminiTestSummarizer(ts *httptest.Server) *GeminiSummarizer {
	return &GeminiSummarizer{
		apiKey:         "test_api_key",
		model:          "gemini-2.5-flash",
		targetLanguage: "Traditional Chinese (zh-TW)",
		maxChars:       500,
		maxTokens:      800,
		baseURL:        ts.URL,
		client:         ts.Client(),
	}
}

func geminiJSONAnswer(t *testing.T, w http.ResponseWriter, r Result) {
	t.Helper()
	inner, err := json.Marshal(r)
	if err != nil {
		t.Error(err)
		return
	}
	resp := geminiResponse{
		Candidates: []geminiCandidate{{
			Content:      geminiContent{Parts: []geminiPart{{Text: string(inner)}}},
			FinishReason: "STOP",
		}},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		t.Error(err)
	}
}

func TestGeminiSummarize(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.5-flash:generateContent" {
			t.Errorf("unexpected path: %q", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test_api_key" {
			t.Errorf("unexpected api key header: %q", got)
		}

		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if req.GenerationConfig.ResponseMimeType != "application/json" {
			t.Errorf("unexpected responseMimeType: %q", req.GenerationConfig.ResponseMimeType)
		}
		if req.GenerationConfig.MaxOutputTokens != 800 {
			t.Errorf("unexpected maxOutputTokens: %d", req.GenerationConfig.MaxOutputTokens)
		}
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 1 {
			t.Errorf("unexpected request shape: %+v", req)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		prompt := req.Contents[0].Parts[0].Text
		if !strings.Contains(prompt, "Original Title") {
			t.Errorf("prompt missing the title:\n%s", prompt)
		}
		if !strings.Contains(prompt, "Traditional Chinese (zh-TW)") {
			t.Errorf("prompt missing the target language:\n%s", prompt)
		}

		geminiJSONAnswer(t, w, Result{Title: "翻譯後的標題", Summary: "這是一段摘要。"})
	}))
	defer ts.Close()

	s := geminiTestSummarizer(ts)
	r, err := s.Summarize(context.Background(), "Original Title", "The article body.")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if r.Title != "翻譯後的標題" {
		t.Errorf("unexpected title: %q", r.Title)
	}
	if r.Summary != "這是一段摘要。" {
		t.Errorf("unexpected summary: %q", r.Summary)
	}
}

func TestGeminiConcatenatesParts(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := geminiResponse{
			Candidates: []geminiCandidate{{
				Content: geminiContent{Parts: []geminiPart{
					{Text: `{"title":"標題",`},
					{Text: `"summary":"分段回應。"}`},
				}},
				FinishReason: "STOP",
			}},
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Error(err)
		}
	}))
	defer ts.Close()

	s := geminiTestSummarizer(ts)
	r, err := s.Summarize(context.Background(), "T", "body")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if r.Summary != "分段回應。" {
		t.Errorf("unexpected summary: %q", r.Summary)
	}
}

func TestGeminiSafetyBlock(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := geminiResponse{
			Candidates: []geminiCandidate{{FinishReason: "SAFETY"}},
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Error(err)
		}
	}))
	defer ts.Close()

	s := geminiTestSummarizer(ts)
	_, err := s.Summarize(context.Background(), "T", "body")
	if err == nil {
		t.Fatal("expected an error for a safety block")
	}
	if !strings.Contains(err.Error(), "content blocked") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGeminiRateLimitStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	s := geminiTestSummarizer(ts)
	_, err := s.Summarize(context.Background(), "T", "body")
	if err == nil {
		t.Fatal("expected an error for a 429 response")
	}
	if !strings.Contains(err.Error(), "unexpected status 429") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGeminiEmptyResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewEncoder(w).Encode(geminiResponse{}); err != nil {
			t.Error(err)
		}
	}))
	defer ts.Close()

	s := geminiTestSummarizer(ts)
	_, err := s.Summarize(context.Background(), "T", "body")
	if err == nil || !strings.Contains(err.Error(), "empty response") {
		t.Errorf("expected an empty response error, got %v", err)
	}
}

func TestGeminiHonorsContextCancellation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, `{}`)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	s := geminiTestSummarizer(ts)
	if _, err := s.Summarize(ctx, "T", "body"); err == nil {
		t.Fatal("expected a context deadline error")
	}
}

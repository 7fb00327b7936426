package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/rollscan/rollscan/internal/types"
)

const (
	GeminiName    = "gemini"
	GeminiBaseURL = "https://generativelanguage.googleapis.com"
)

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// RPM is the request quota in requests per minute (default: 60).
	RPM int
	// UploadTimeout bounds the one-time file upload per document.
	UploadTimeout time.Duration
	Logger        *slog.Logger
}

// GeminiClient implements Extractor against the Gemini generative API.
// Documents are staged once via the file API; the returned handle is
// reused for every segment call against the same source file.
type GeminiClient struct {
	apiKey  string
	baseURL string
	model   string
	rpm     int
	client  *http.Client
	logger  *slog.Logger

	uploadTimeout time.Duration

	mu      sync.Mutex
	uploads map[string]string // source path -> file URI
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = GeminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-pro"
	}
	if cfg.RPM <= 0 {
		cfg.RPM = 60
	}
	if cfg.UploadTimeout == 0 {
		cfg.UploadTimeout = 2 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &GeminiClient{
		apiKey:        cfg.APIKey,
		baseURL:       cfg.BaseURL,
		model:         cfg.Model,
		rpm:           cfg.RPM,
		client:        &http.Client{},
		logger:        cfg.Logger.With("provider", GeminiName),
		uploadTimeout: cfg.UploadTimeout,
		uploads:       make(map[string]string),
	}
}

// Name returns the provider identifier.
func (c *GeminiClient) Name() string {
	return GeminiName
}

// RequestsPerMinute returns the provider quota for worker pacing.
func (c *GeminiClient) RequestsPerMinute() int {
	return c.rpm
}

// Extract runs one segment call against the staged document.
func (c *GeminiClient) Extract(ctx context.Context, req *Request) (*Result, error) {
	if req.PageStart < 0 || req.PageEnd <= req.PageStart {
		return nil, Permanent(fmt.Errorf("invalid page range [%d,%d)", req.PageStart, req.PageEnd))
	}

	fileURI, err := c.ensureUploaded(ctx, req.SourcePath)
	if err != nil {
		return nil, err
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	start := time.Now()
	body := map[string]any{
		"contents": []map[string]any{{
			"role": "user",
			"parts": []map[string]any{
				{"file_data": map[string]any{
					"mime_type": "application/pdf",
					"file_uri":  fileURI,
				}},
				{"text": buildSegmentInstruction(req)},
			},
		}},
		"generationConfig": map[string]any{
			"responseMimeType": "application/json",
		},
	}

	resp, err := c.doGenerate(ctx, body)
	if err != nil {
		return nil, err
	}

	text := resp.text()
	if text == "" {
		return nil, Transient(fmt.Errorf("empty response from model (finish reason %q)", resp.finishReason()))
	}

	parsed, err := parseSegmentJSON(text)
	if err != nil {
		// Unparseable output is occasionally a truncation; let the policy retry.
		return nil, Transient(err)
	}
	if err := validateSegmentJSON(parsed); err != nil {
		return nil, Permanent(err)
	}

	var seg segmentResponse
	if err := json.Unmarshal(parsed, &seg); err != nil {
		return nil, Permanent(fmt.Errorf("failed to decode segment response: %w", err))
	}

	result := &Result{
		Records:          make([]types.RawVoterRecord, 0, len(seg.Records)),
		ModelUsed:        c.model,
		PromptTokens:     resp.UsageMetadata.PromptTokenCount,
		CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
		Duration:         time.Since(start),
	}
	for _, r := range seg.Records {
		result.Records = append(result.Records, types.RawVoterRecord{
			SerialNumber: r.SerialNumber,
			Name:         r.Name,
			RelativeName: r.RelativeName,
			RelationType: r.RelationType,
			HouseNumber:  r.HouseNumber,
			Gender:       r.Gender,
			Age:          r.Age,
			PhotoID:      r.PhotoID,
			LocationName: r.LocationName,
			Page:         r.Page,
		})
	}
	if req.IncludeHeader && seg.Header != nil {
		result.Header = &types.DocumentHeader{
			State:            seg.Header.State,
			ConstituencyName: seg.Header.ConstituencyName,
			ConstituencyNum:  seg.Header.ConstituencyNumber,
			PartNumber:       seg.Header.PartNumber,
			PollingStation:   seg.Header.PollingStation,
			Language:         seg.Header.Language,
		}
	}

	c.logger.Debug("segment extracted",
		"pages", fmt.Sprintf("[%d,%d)", req.PageStart, req.PageEnd),
		"records", len(result.Records),
		"duration", result.Duration,
	)
	return result, nil
}

// ensureUploaded stages the document with the file API once per path.
func (c *GeminiClient) ensureUploaded(ctx context.Context, path string) (string, error) {
	c.mu.Lock()
	if uri, ok := c.uploads[path]; ok {
		c.mu.Unlock()
		return uri, nil
	}
	c.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return "", Permanent(fmt.Errorf("failed to read document: %w", err))
	}

	uploadCtx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	var uri string
	err = retry.Do(
		func() error {
			var uErr error
			uri, uErr = c.uploadOnce(uploadCtx, data)
			return uErr
		},
		retry.Context(uploadCtx),
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(func(err error) bool { return Classify(err).Retryable() }),
	)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.uploads[path] = uri
	c.mu.Unlock()

	c.logger.Info("document staged", "path", path, "file_uri", uri, "size_kb", len(data)/1024)
	return uri, nil
}

func (c *GeminiClient) uploadOnce(ctx context.Context, data []byte) (string, error) {
	url := fmt.Sprintf("%s/upload/v1beta/files?key=%s", c.baseURL, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", Permanent(fmt.Errorf("failed to create upload request: %w", err))
	}
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("X-Goog-Upload-Protocol", "raw")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Transient(fmt.Errorf("failed to read upload response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp, respBody)
	}

	var parsed struct {
		File struct {
			URI string `json:"uri"`
		} `json:"file"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", Transient(fmt.Errorf("failed to decode upload response: %w", err))
	}
	if parsed.File.URI == "" {
		return "", Transient(fmt.Errorf("upload response missing file URI"))
	}
	return parsed.File.URI, nil
}

func (c *GeminiClient) doGenerate(ctx context.Context, body any) (*generateResponse, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, Permanent(fmt.Errorf("failed to marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transient(fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp, respBody)
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, Transient(fmt.Errorf("failed to decode response: %w", err))
	}
	return &parsed, nil
}

// classifyTransportError maps client.Do failures onto the error taxonomy.
func classifyTransportError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(err)
	}
	if errors.Is(err, context.Canceled) {
		return Transient(err)
	}
	return Transient(fmt.Errorf("request failed: %w", err))
}

// classifyStatus maps non-200 responses onto the error taxonomy.
func classifyStatus(resp *http.Response, body []byte) *Error {
	err := fmt.Errorf("gemini error (status %d): %s", resp.StatusCode, truncate(string(body), 500))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return RateLimited(err, parseRetryAfter(resp.Header.Get("Retry-After")))
	case resp.StatusCode >= 500:
		return Transient(err)
	default:
		return Permanent(err)
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...[truncated]"
}

// generateResponse is the subset of the generateContent reply we consume.
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (r *generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var out string
	for _, part := range r.Candidates[0].Content.Parts {
		out += part.Text
	}
	return out
}

func (r *generateResponse) finishReason() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	return r.Candidates[0].FinishReason
}

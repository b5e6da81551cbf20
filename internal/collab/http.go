package collab

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/docpipe/internal/common"
)

// sendJSON posts a JSON body to a full URL with optional headers and
// returns the raw response body and status code. It assumes no provider;
// callers decide the URL and headers.
func sendJSON(ctx context.Context, client *http.Client, url string, body any, headers map[string]string, logger *slog.Logger) ([]byte, int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 45 * time.Second}
	}

	reqID := common.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.New().String()
	}
	start := time.Now()

	bs, err := json.Marshal(body)
	if err != nil {
		logger.Error("collab.http.encode_error", "req_id", reqID, "error", err)
		return nil, 0, fmt.Errorf("encode json: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		logger.Error("collab.http.build_request_error", "req_id", reqID, "error", err)
		return nil, 0, fmt.Errorf("build request: %w", err)
	}

	// Default headers; allow caller overrides.
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	logger.Info("collab.http.request", "req_id", reqID, "url", url, "content_length", len(bs))

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("collab.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, 0, err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			logger.Warn("collab.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)

	logger.Info("collab.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return raw, resp.StatusCode, fmt.Errorf("non-2xx status: %d", resp.StatusCode)
	}
	return raw, resp.StatusCode, nil
}

// HTTPOCRClient speaks to a hosted OCR inference server.
type HTTPOCRClient struct {
	url    string
	apiKey string
	client *http.Client
	logger *slog.Logger
}

func NewHTTPOCRClient(url, apiKey string, timeout time.Duration, logger *slog.Logger) *HTTPOCRClient {
	return &HTTPOCRClient{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (c *HTTPOCRClient) Analyze(ctx context.Context, documentBytes []byte) (OCRResult, error) {
	body := map[string]any{
		"document": base64.StdEncoding.EncodeToString(documentBytes),
	}
	raw, status, err := sendJSON(ctx, c.client, c.url, body, c.headers(), c.logger)
	if err != nil {
		return OCRResult{Raw: raw}, common.CollaboratorError(status, err)
	}

	var res OCRResult
	if err := json.Unmarshal(raw, &res); err != nil {
		// keep the unparsed body so a partial run can still be audited
		return OCRResult{Status: StatusPartial, Raw: raw}, nil
	}
	res.Raw = raw
	if res.Status == "" {
		res.Status = StatusOK
	}
	return res, nil
}

func (c *HTTPOCRClient) headers() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

// HTTPVLMClient speaks to a hosted vision-language enrichment server.
type HTTPVLMClient struct {
	url    string
	apiKey string
	client *http.Client
	logger *slog.Logger
}

func NewHTTPVLMClient(url, apiKey string, timeout time.Duration, logger *slog.Logger) *HTTPVLMClient {
	return &HTTPVLMClient{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (c *HTTPVLMClient) Enrich(ctx context.Context, ocr OCRResult, documentBytes []byte) (EnrichmentResult, error) {
	body := map[string]any{
		"ocr":      ocr,
		"document": base64.StdEncoding.EncodeToString(documentBytes),
	}
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}
	raw, status, err := sendJSON(ctx, c.client, c.url, body, headers, c.logger)
	if err != nil {
		return EnrichmentResult{Raw: raw}, common.CollaboratorError(status, err)
	}

	var res EnrichmentResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return EnrichmentResult{Status: StatusPartial, Raw: raw}, nil
	}
	res.Raw = raw
	if res.Status == "" {
		res.Status = StatusOK
	}
	return res, nil
}

package collab

import (
	"context"
	"strings"
)

// MockOCRClient returns a deterministic payload derived from the document
// bytes. Selected by the COLLABORATOR_MOCK config flag for local runs and
// tests.
type MockOCRClient struct {
	// FailWith, when set, is returned from every Analyze call.
	FailWith error
	// Partial forces a partial-status payload.
	Partial bool
}

func (m *MockOCRClient) Analyze(_ context.Context, documentBytes []byte) (OCRResult, error) {
	if m.FailWith != nil {
		return OCRResult{}, m.FailWith
	}
	if m.Partial {
		return OCRResult{Status: StatusPartial, Raw: documentBytes}, nil
	}

	var blocks []TextBlock
	for i, line := range strings.Split(string(documentBytes), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		blocks = append(blocks, TextBlock{
			Text:       line,
			Page:       1,
			Y:          float64(i) * 12,
			Confidence: 0.95,
		})
	}
	return OCRResult{
		Status:       StatusOK,
		TextBlocks:   blocks,
		Confidence:   0.95,
		ModelVersion: "mock-ocr-1",
	}, nil
}

// MockVLMClient echoes back a minimal structured payload.
type MockVLMClient struct {
	FailWith error
	// Structured overrides the returned structured data when non-nil.
	Structured map[string]any
}

func (m *MockVLMClient) Enrich(_ context.Context, ocr OCRResult, _ []byte) (EnrichmentResult, error) {
	if m.FailWith != nil {
		return EnrichmentResult{}, m.FailWith
	}
	data := m.Structured
	if data == nil {
		data = map[string]any{"text_blocks": len(ocr.TextBlocks)}
	}
	return EnrichmentResult{
		Status:         StatusOK,
		StructuredData: data,
		ConfidenceScores: map[string]float32{
			"overall": ocr.Confidence,
		},
		ModelVersion: "mock-vlm-1",
	}, nil
}

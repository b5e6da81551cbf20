// Package collab defines the contracts for the external OCR and VLM
// enrichment collaborators, plus HTTP and mock implementations selected
// at construction time.
package collab

import "context"

// Collaborator call statuses. A "partial" payload is tolerated and
// propagated by the pipeline, never treated as failure.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
)

// TextBlock is one recognized span of text with its position.
type TextBlock struct {
	Text       string  `json:"text"`
	Page       int     `json:"page"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float32 `json:"confidence"`
}

// Region is a detected layout region (table, header, total box).
type Region struct {
	Kind string  `json:"kind"`
	Page int     `json:"page"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	W    float64 `json:"w"`
	H    float64 `json:"h"`
}

// OCRResult is the structured payload returned by the OCR collaborator.
type OCRResult struct {
	Status       string      `json:"status"`
	TextBlocks   []TextBlock `json:"text_blocks"`
	Regions      []Region    `json:"regions,omitempty"`
	Confidence   float32     `json:"confidence"`
	ModelVersion string      `json:"model_version,omitempty"`
	Raw          []byte      `json:"-"` // unparsed body kept for partial results
}

// EnrichmentResult is the structured payload from the VLM collaborator.
type EnrichmentResult struct {
	Status           string             `json:"status"`
	StructuredData   map[string]any     `json:"structured_data"`
	ConfidenceScores map[string]float32 `json:"confidence_scores,omitempty"`
	ModelVersion     string             `json:"model_version,omitempty"`
	Raw              []byte             `json:"-"`
}

// OCRClient runs layout analysis and text recognition on raw document bytes.
type OCRClient interface {
	Analyze(ctx context.Context, documentBytes []byte) (OCRResult, error)
}

// VLMClient enriches an OCR payload with semantically structured fields.
type VLMClient interface {
	Enrich(ctx context.Context, ocr OCRResult, documentBytes []byte) (EnrichmentResult, error)
}

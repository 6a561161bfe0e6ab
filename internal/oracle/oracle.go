// Package oracle provides the LLM capability used for classification,
// summarization, and screenshot transcription. The concrete backend is
// AWS Bedrock (Claude); everything else in the pipeline depends only on
// the Oracle interface.
package oracle

import "context"

// Options controls a single generation call.
type Options struct {
	// Temperature in [0, 1]. Classification uses 0; summarization uses
	// a moderate value.
	Temperature float64
	// MaxTokens is the hard output cap. Zero means the backend default.
	MaxTokens int
	// ModelID overrides the configured model for this call.
	ModelID string
}

// Oracle is a stateless text-generation capability.
type Oracle interface {
	// Generate produces a reply for the prompt. Transient upstream
	// failures are retried internally by the retry wrapper; callers see
	// ErrTransient only after retries are exhausted.
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// VisionOracle extends Oracle with image-grounded generation, used by
// the capture stage to transcribe screenshots.
type VisionOracle interface {
	Oracle
	// GenerateVision produces a reply for the prompt grounded on a PNG
	// image.
	GenerateVision(ctx context.Context, prompt string, imagePNG []byte, opts Options) (string, error)
}

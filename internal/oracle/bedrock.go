package oracle

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/pkg/logger"
)

const (
	defaultModelID   = "anthropic.claude-3-haiku-20240307-v1:0"
	anthropicVersion = "bedrock-2023-05-31"
	defaultMaxTokens = 1024
)

// BedrockOracle generates text via AWS Bedrock's Anthropic models.
type BedrockOracle struct {
	client  *bedrockruntime.Client
	modelID string
}

// NewBedrockOracle creates a Bedrock-backed oracle. An empty modelID
// selects the default Claude model.
func NewBedrockOracle(cfg aws.Config, modelID string) *BedrockOracle {
	if modelID == "" {
		modelID = defaultModelID
	}
	return &BedrockOracle{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
	}
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Messages         []anthropicMessage `json:"messages"`
	Temperature      float64            `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Generate implements Oracle.
func (o *BedrockOracle) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	content := []anthropicContent{{Type: "text", Text: prompt}}
	return o.invoke(ctx, content, opts)
}

// GenerateVision implements VisionOracle. The image is attached as a
// base64 PNG content block ahead of the prompt text.
func (o *BedrockOracle) GenerateVision(ctx context.Context, prompt string, imagePNG []byte, opts Options) (string, error) {
	content := []anthropicContent{
		{
			Type: "image",
			Source: &anthropicSource{
				Type:      "base64",
				MediaType: "image/png",
				Data:      base64.StdEncoding.EncodeToString(imagePNG),
			},
		},
		{Type: "text", Text: prompt},
	}
	return o.invoke(ctx, content, opts)
}

func (o *BedrockOracle) invoke(ctx context.Context, content []anthropicContent, opts Options) (string, error) {
	modelID := o.modelID
	if opts.ModelID != "" {
		modelID = opts.ModelID
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	body, err := json.Marshal(anthropicRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        maxTokens,
		Temperature:      opts.Temperature,
		Messages:         []anthropicMessage{{Role: "user", Content: content}},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling bedrock request: %w", err)
	}

	output, err := o.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", classifyBedrockError(err)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return "", Permanent(fmt.Errorf("parsing bedrock response: %w", err))
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", Transient(fmt.Errorf("empty completion (stop_reason=%s)", resp.StopReason))
	}

	logger.Debug("oracle: bedrock call complete",
		"model", modelID,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens)

	return text, nil
}

// classifyBedrockError maps SDK failures onto the transient/permanent
// split the retry wrapper acts on.
func classifyBedrockError(err error) error {
	var throttle *types.ThrottlingException
	var internal *types.InternalServerException
	var unavailable *types.ServiceUnavailableException
	var notReady *types.ModelNotReadyException
	var timeout *types.ModelTimeoutException
	if errors.As(err, &throttle) || errors.As(err, &internal) ||
		errors.As(err, &unavailable) || errors.As(err, &notReady) ||
		errors.As(err, &timeout) {
		return Transient(err)
	}

	var denied *types.AccessDeniedException
	var validation *types.ValidationException
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &denied) || errors.As(err, &validation) || errors.As(err, &notFound) {
		return Permanent(err)
	}

	// Network-level failures are worth a retry.
	return Transient(err)
}

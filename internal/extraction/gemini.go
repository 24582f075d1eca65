package extraction

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"receiptflow/pkg/config"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Gemini extracts receipts with a Gemini vision model. Images and PDFs are
// sent inline.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	logger *zap.Logger
}

func NewGemini(ctx context.Context, cfg *config.GeminiConfig, logger *zap.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SystemInstruction = genai.NewUserContent(genai.Text(systemInstruction))
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0.1)

	logger.Info("Gemini extractor ready", zap.String("model", cfg.Model))
	return &Gemini{client: client, model: model, logger: logger}, nil
}

func (g *Gemini) Extract(ctx context.Context, data []byte, mimeType string) (*Result, error) {
	resp, err := g.model.GenerateContent(ctx,
		genai.Blob{MIMEType: mimeType, Data: data},
		genai.Text(extractionPrompt),
	)
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				sb.WriteString(string(txt))
			}
		}
		break
	}
	if sb.Len() == 0 {
		return nil, ErrEmptyResponse
	}

	g.logger.Debug("Gemini extraction response", zap.Int("length", sb.Len()))
	return Parse(sb.String())
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

func classifyGeminiError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code == http.StatusServiceUnavailable {
			return fmt.Errorf("%w: %v", ErrOverloaded, err)
		}
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted:
		return fmt.Errorf("%w: %v", ErrOverloaded, err)
	}
	if strings.Contains(strings.ToLower(err.Error()), "overloaded") {
		return fmt.Errorf("%w: %v", ErrOverloaded, err)
	}
	return fmt.Errorf("gemini request failed: %w", err)
}

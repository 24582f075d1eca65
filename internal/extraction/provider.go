package extraction

import (
	"context"
	"fmt"
	"io"

	"receiptflow/pkg/config"

	"go.uber.org/zap"
)

// ClosingExtractor is an Extractor holding a provider connection.
type ClosingExtractor interface {
	Extractor
	io.Closer
}

// New builds the configured provider wrapped in the retry policy.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Extractor, io.Closer, error) {
	var backend ClosingExtractor
	var err error
	switch cfg.Extraction.Provider {
	case "gemini":
		backend, err = NewGemini(ctx, &cfg.Gemini, logger)
	case "gigachat":
		backend, err = NewGigaChat(ctx, &cfg.GigaChat, logger)
	default:
		err = fmt.Errorf("unknown extraction provider %q", cfg.Extraction.Provider)
	}
	if err != nil {
		return nil, nil, err
	}
	return NewRetrying(backend, cfg.Extraction.MaxAttempts, cfg.Extraction.RetryBackoff, logger), backend, nil
}

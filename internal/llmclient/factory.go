// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/inbox-sweeper/api/schemas"
	"github.com/xkilldash9x/inbox-sweeper/internal/config"
)

// NewContentClassifier creates the classifier configured in cfg. It returns
// a nil classifier when the LLM is disabled or has no API key, in which case
// the unsubscribe flow skips its AI step.
func NewContentClassifier(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (schemas.ContentClassifier, error) {
	if !cfg.Enabled() {
		logger.Info("Content classifier disabled.", zap.String("provider", string(cfg.Provider)))
		return nil, nil
	}

	switch cfg.Provider {
	case config.ProviderGemini:
		gen, err := NewGeminiClient(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return NewClassifier(gen, cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s]", cfg.Provider, config.ProviderGemini)
	}
}

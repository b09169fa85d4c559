package stt

import (
	"context"
	"fmt"

	"github.com/lexiqai/conversation-pipeline/internal/config"
)

// New builds the recognizer selected by STT_PROVIDER
func New(ctx context.Context, cfg *config.Config) (Recognizer, error) {
	switch cfg.STTProvider {
	case config.ProviderDeepgram:
		return NewDeepgramRecognizer(cfg), nil
	case config.ProviderGoogle:
		r, err := NewGoogleRecognizer(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return r, nil
	case config.ProviderMock:
		return NewMockRecognizer(nil, nil), nil
	default:
		return nil, fmt.Errorf("unsupported STT provider %q", cfg.STTProvider)
	}
}

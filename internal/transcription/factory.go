package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"shopcalls/internal/config"
	"shopcalls/internal/settings"
	"shopcalls/internal/telephony"
	"shopcalls/pkg/logger"
)

const envProvider = "TRANSCRIPTION_PROVIDER"

// Builder constructs a provider on demand.
type Builder func() (Provider, error)

// Factory maps the transcription_provider setting to a Provider. The setting is
// looked up on every ResolveProvider call.
type Factory struct {
	resolver *settings.Resolver
	fallback string
	log      *slog.Logger

	mu       sync.RWMutex
	builders map[string]Builder
}

func NewFactory(resolver *settings.Resolver, fallback string, l *slog.Logger) *Factory {
	if l == nil {
		l = slog.Default()
	}
	if fallback == "" {
		fallback = ProviderAssemblyAI
	}
	return &Factory{
		resolver: resolver,
		fallback: fallback,
		log:      logger.Component(l, "transcription"),
		builders: map[string]Builder{},
	}
}

func (f *Factory) Register(name string, b Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[strings.ToLower(name)] = b
}

// RegisterDefaults wires every supported backend from configuration.
// rc may be nil, in which case the ringcentral provider reports not configured.
func (f *Factory) RegisterDefaults(cfg config.TranscriptionConfig, rc *telephony.RingCentral, hc *http.Client) {
	f.Register(ProviderAssemblyAI, func() (Provider, error) {
		return NewAssemblyAI(cfg.AssemblyAIKey, "")
	})
	f.Register(ProviderDeepgram, func() (Provider, error) {
		return NewDeepgram(cfg.DeepgramKey, "", hc)
	})
	f.Register(ProviderWhisper, func() (Provider, error) {
		return NewWhisper(cfg.OpenAIKey, "")
	})
	f.Register(ProviderRingCentral, func() (Provider, error) {
		if rc == nil {
			return nil, fmt.Errorf("%w: ringcentral client is not available", ErrProviderNotConfigured)
		}
		return NewRingCentralSTT(rc)
	})
}

// ProviderName returns the effective provider name without building it.
func (f *Factory) ProviderName(ctx context.Context) string {
	if f.resolver == nil {
		return f.fallback
	}
	name, err := f.resolver.Lookup(ctx, settings.KeyTranscriptionProvider, envProvider, f.fallback)
	if err != nil {
		f.log.Warn("settings lookup failed, using environment", "err", err)
	}
	return strings.ToLower(strings.TrimSpace(name))
}

func (f *Factory) ResolveProvider(ctx context.Context) (Provider, error) {
	name := f.ProviderName(ctx)

	f.mu.RLock()
	b, ok := f.builders[name]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return b()
}

// Known reports whether name has a registered builder.
func (f *Factory) Known(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.builders[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

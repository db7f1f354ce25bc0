package transcription

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopcalls/internal/config"
	"shopcalls/internal/settings"
)

func namedBuilder(name string) Builder {
	return func() (Provider, error) { return &fakeProvider{name: name, needsAudio: true}, nil }
}

func TestFactory_PersistedSettingWinsAndIsReadEachCall(t *testing.T) {
	t.Setenv("TRANSCRIPTION_PROVIDER", "whisper")
	src := settings.NewMemorySource()
	f := NewFactory(settings.NewResolver(src), ProviderAssemblyAI, nil)
	for _, n := range []string{ProviderAssemblyAI, ProviderDeepgram, ProviderWhisper} {
		f.Register(n, namedBuilder(n))
	}
	ctx := context.Background()

	p, err := f.ResolveProvider(ctx)
	require.NoError(t, err)
	assert.Equal(t, ProviderWhisper, p.Name(), "env fallback")

	src.Set(settings.KeyTranscriptionProvider, "Deepgram")
	p, err = f.ResolveProvider(ctx)
	require.NoError(t, err)
	assert.Equal(t, ProviderDeepgram, p.Name(), "persisted setting overrides env without restart")
}

func TestFactory_DefaultAndUnknown(t *testing.T) {
	t.Setenv("TRANSCRIPTION_PROVIDER", "")
	src := settings.NewMemorySource()
	f := NewFactory(settings.NewResolver(src), "", nil)
	f.Register(ProviderAssemblyAI, namedBuilder(ProviderAssemblyAI))

	p, err := f.ResolveProvider(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ProviderAssemblyAI, p.Name())

	src.Set(settings.KeyTranscriptionProvider, "carrier-pigeon")
	_, err = f.ResolveProvider(context.Background())
	assert.ErrorIs(t, err, ErrUnknownProvider)

	assert.True(t, f.Known(" AssemblyAI "))
	assert.False(t, f.Known("carrier-pigeon"))
}

func TestFactory_RegisterDefaultsReportsMissingKeys(t *testing.T) {
	src := settings.NewMemorySource()
	f := NewFactory(settings.NewResolver(src), ProviderAssemblyAI, nil)
	f.RegisterDefaults(config.TranscriptionConfig{}, nil, nil)

	for _, name := range []string{ProviderAssemblyAI, ProviderDeepgram, ProviderWhisper, ProviderRingCentral} {
		src.Set(settings.KeyTranscriptionProvider, name)
		_, err := f.ResolveProvider(context.Background())
		assert.ErrorIs(t, err, ErrProviderNotConfigured, name)
	}

	f.RegisterDefaults(config.TranscriptionConfig{AssemblyAIKey: "k", DeepgramKey: "k", OpenAIKey: "k"}, nil, nil)
	for _, name := range []string{ProviderAssemblyAI, ProviderDeepgram, ProviderWhisper} {
		src.Set(settings.KeyTranscriptionProvider, name)
		p, err := f.ResolveProvider(context.Background())
		require.NoError(t, err, name)
		assert.Equal(t, name, p.Name())
	}
}

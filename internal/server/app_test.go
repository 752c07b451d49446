package server

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leroytan/the-website-sub000/internal/logging"
	"github.com/leroytan/the-website-sub000/internal/server/config"
	"github.com/leroytan/the-website-sub000/internal/server/metrics"
	"github.com/leroytan/the-website-sub000/internal/server/moderation"
)

func TestBuildProviders(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want []string
	}{
		{"none", config.Config{}, nil},
		{"ollama only", config.Config{OllamaURL: "http://ollama", OllamaModel: "llama3.2"}, []string{"ollama:llama3.2"}},
		{"both in priority order", config.Config{
			OllamaURL: "http://ollama", OllamaModel: "llama3.2",
			OpenAIURL: "http://openai", OpenAIModel: "gpt-4o-mini",
		}, []string{"ollama:llama3.2", "openai:gpt-4o-mini"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var names []string
			for _, p := range buildProviders(&tt.cfg, http.DefaultClient) {
				names = append(names, p.Name())
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestBuildPipeline_RejectsUnknownOrder(t *testing.T) {
	cfg := config.Config{ProviderOrder: "round-robin"}
	_, err := buildPipeline(&cfg, logging.Nop(), metrics.New())
	assert.Error(t, err)
}

func TestBuildPipeline_NoProvidersStaysOnFastPath(t *testing.T) {
	cfg := config.Config{ProviderOrder: config.ProviderOrderRandom, MinLength: 30}
	p, err := buildPipeline(&cfg, logging.Nop(), metrics.New())
	require.NoError(t, err)

	v, err := p.Moderate(context.Background(), "this message is long enough to be escalated normally", moderation.DefaultThreshold)
	require.NoError(t, err)
	assert.False(t, v.Filtered)
	assert.Equal(t, moderation.ProviderFastPath, v.Provider)

	v, err = p.Moderate(context.Background(), "reach me at alice@example.com", moderation.DefaultThreshold)
	require.NoError(t, err)
	assert.True(t, v.Filtered)
}

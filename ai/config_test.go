package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://localhost:11434/v1", cfg.ChatHost)
	assert.Equal(t, cfg.ChatHost, cfg.EmbeddingHost)
}

func TestConfig_Normalize(t *testing.T) {
	t.Run("adds v1 suffix", func(t *testing.T) {
		cfg := NewConfig(WithHost("http://localhost:9100"))
		cfg.Normalize()
		assert.Equal(t, "http://localhost:9100/v1", cfg.ChatHost)
		assert.Equal(t, "http://localhost:9100/v1", cfg.EmbeddingHost)
	})

	t.Run("strips trailing slash before suffix", func(t *testing.T) {
		cfg := NewConfig(WithChatHost("http://localhost:9100/"))
		cfg.Normalize()
		assert.Equal(t, "http://localhost:9100/v1", cfg.ChatHost)
	})

	t.Run("embedding host defaults to chat host", func(t *testing.T) {
		cfg := NewConfig(WithChatHost("http://chat.example.com/v1"))
		cfg.EmbeddingHost = ""
		cfg.Normalize()
		assert.Equal(t, cfg.ChatHost, cfg.EmbeddingHost)
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Run("missing chat model", func(t *testing.T) {
		cfg := NewConfig(WithChatModel(""))
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing embedding model", func(t *testing.T) {
		cfg := NewConfig(WithEmbeddingModel(""))
		assert.Error(t, cfg.Validate())
	})

	t.Run("complete config", func(t *testing.T) {
		cfg := NewConfig(
			WithHost("https://dashscope-intl.aliyuncs.com/compatible-mode"),
			WithAPIKey("sk-test"),
			WithChatModel("qwen-plus"),
			WithEmbeddingModel("text-embedding-v3"),
		)
		assert.NoError(t, cfg.Validate())
	})
}

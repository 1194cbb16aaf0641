package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"VECTOR_BACKEND", "EMBED_PROVIDER", "MAX_CHUNK_SIZE", "STORE_TIMEOUT", "MCP_ENABLED"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.VectorBackend != "bolt" || cfg.EmbedProvider != "ollama" {
		t.Fatalf("unexpected defaults: backend=%s provider=%s", cfg.VectorBackend, cfg.EmbedProvider)
	}
	if cfg.MaxChunkSize != 500 || cfg.DefaultMaxChunks != 8 || cfg.MaxQueryVariants != 3 {
		t.Fatalf("unexpected retrieval defaults: %+v", cfg)
	}
	if cfg.StoreTimeout != 30*time.Second || !cfg.MCPEnabled {
		t.Fatalf("unexpected defaults: timeout=%s mcp=%v", cfg.StoreTimeout, cfg.MCPEnabled)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("VECTOR_BACKEND", "sqlite")
	t.Setenv("EMBED_PROVIDER", "hashing")
	t.Setenv("MAX_CHUNK_SIZE", "800")
	t.Setenv("CHUNK_SPLIT_ON_BLOCKS", "true")
	t.Setenv("EMBED_TIMEOUT", "5s")
	t.Setenv("QDRANT_PORT", "not-a-number")

	cfg := Load()
	if cfg.VectorBackend != "sqlite" || cfg.EmbedProvider != "hashing" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.MaxChunkSize != 800 || !cfg.ChunkSplitOnBlocks || cfg.EmbedTimeout != 5*time.Second {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.QdrantPort != 6334 {
		t.Fatalf("malformed int should fall back to default, got %d", cfg.QdrantPort)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.VectorBackend = "redis" }, "VECTOR_BACKEND"},
		{"unknown provider", func(c *Config) { c.EmbedProvider = "cohere" }, "EMBED_PROVIDER"},
		{"zero chunk size", func(c *Config) { c.MaxChunkSize = 0 }, "MAX_CHUNK_SIZE"},
		{"negative keep", func(c *Config) { c.KeepRecentSessions = -1 }, "KEEP_RECENT_SESSIONS"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Load()
			cfg.VectorBackend = "bolt"
			cfg.EmbedProvider = "hashing"
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got %v", tc.want, err)
			}
		})
	}
}

func TestDSNMasksPassword(t *testing.T) {
	cfg := &Config{DatabaseURL: "postgres://user:secret@db:5432/rag?sslmode=disable"}
	if dsn := cfg.DSN(); strings.Contains(dsn, "secret") {
		t.Fatalf("password leaked: %s", dsn)
	}
}

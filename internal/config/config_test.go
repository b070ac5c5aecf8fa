package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.APIPort != "8080" {
		t.Fatalf("APIPort = %q, want 8080", cfg.APIPort)
	}
	if cfg.NATSTraceSubject != "chat.trace" {
		t.Fatalf("NATSTraceSubject = %q, want chat.trace", cfg.NATSTraceSubject)
	}
	if cfg.SearchVectorKNearest != 50 {
		t.Fatalf("SearchVectorKNearest = %d, want 50", cfg.SearchVectorKNearest)
	}
	if cfg.StrictModelLimits {
		t.Fatal("StrictModelLimits should default to false")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("API_PORT", "9000")
	t.Setenv("CHAT_MODEL", "gpt-4o")
	t.Setenv("EMBED_DIMENSIONS", "1536")
	t.Setenv("STRICT_MODEL_LIMITS", "true")
	t.Setenv("API_RATE_LIMIT_RPS", "12.5")

	cfg := Load()

	if cfg.APIPort != "9000" {
		t.Fatalf("APIPort = %q, want 9000", cfg.APIPort)
	}
	if cfg.ChatModel != "gpt-4o" {
		t.Fatalf("ChatModel = %q, want gpt-4o", cfg.ChatModel)
	}
	if cfg.EmbedDimensions != 1536 {
		t.Fatalf("EmbedDimensions = %d, want 1536", cfg.EmbedDimensions)
	}
	if !cfg.StrictModelLimits {
		t.Fatal("StrictModelLimits should be true")
	}
	if cfg.APIRateLimitRPS != 12.5 {
		t.Fatalf("APIRateLimitRPS = %v, want 12.5", cfg.APIRateLimitRPS)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("EMBED_DIMENSIONS", "not-a-number")
	t.Setenv("STRICT_MODEL_LIMITS", "maybe")

	cfg := Load()

	if cfg.EmbedDimensions != 0 {
		t.Fatalf("EmbedDimensions = %d, want fallback 0", cfg.EmbedDimensions)
	}
	if cfg.StrictModelLimits {
		t.Fatal("StrictModelLimits should fall back to false")
	}
}

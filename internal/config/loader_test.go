package config_test

import (
	"strings"
	"testing"

	"github.com/ideaspark/ideaspark/internal/config"
)

func TestValidate_MissingJWTSecret(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing jwt_secret, got nil")
	}
	if !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("error should mention jwt_secret, got: %v", err)
	}
}

func TestValidate_ShortJWTSecret(t *testing.T) {
	t.Parallel()
	yaml := `
auth:
  jwt_secret: tooshort
providers:
  llm:
    name: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for short jwt_secret, got nil")
	}
	if !strings.Contains(err.Error(), "32") {
		t.Errorf("error should mention the minimum length, got: %v", err)
	}
}

func TestValidate_MissingLLMProvider(t *testing.T) {
	t.Parallel()
	yaml := `
auth:
  jwt_secret: 0123456789abcdef0123456789abcdef
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing LLM provider, got nil")
	}
	if !strings.Contains(err.Error(), "providers.llm") {
		t.Errorf("error should mention providers.llm, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
auth:
  jwt_secret: 0123456789abcdef0123456789abcdef
providers:
  llm:
    name: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_IncompleteTLS(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  tls:
    cert_file: /etc/ideaspark/tls.crt
auth:
  jwt_secret: 0123456789abcdef0123456789abcdef
providers:
  llm:
    name: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for tls without key_file, got nil")
	}
	if !strings.Contains(err.Error(), "key_file") {
		t.Errorf("error should mention key_file, got: %v", err)
	}
}

func TestValidate_NegativeEmbeddingDimensions(t *testing.T) {
	t.Parallel()
	yaml := `
auth:
  jwt_secret: 0123456789abcdef0123456789abcdef
providers:
  llm:
    name: openai
store:
  embedding_dimensions: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative embedding_dimensions, got nil")
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
	if !strings.Contains(errStr, "jwt_secret") {
		t.Errorf("error should mention jwt_secret, got: %v", err)
	}
	if !strings.Contains(errStr, "providers.llm") {
		t.Errorf("error should mention providers.llm, got: %v", err)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	if len(config.ValidProviderNames) == 0 {
		t.Fatal("ValidProviderNames should not be empty")
	}
	llmNames := config.ValidProviderNames["llm"]
	if len(llmNames) == 0 {
		t.Fatal("ValidProviderNames[\"llm\"] should not be empty")
	}
	found := false
	for _, n := range llmNames {
		if n == "gemini" {
			found = true
			break
		}
	}
	if !found {
		t.Error("ValidProviderNames[\"llm\"] should contain \"gemini\"")
	}
}

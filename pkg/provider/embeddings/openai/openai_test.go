package openai

import "testing"

// TestNew_MissingAPIKey ensures constructor rejects an empty API key.
func TestNew_MissingAPIKey(t *testing.T) {
	_, err := New("", "text-embedding-3-small")
	if err == nil {
		t.Fatal("expected error for empty API key")
	}
}

// TestNew_DefaultModel checks that an empty model falls back to DefaultModel
// with its known dimensionality.
func TestNew_DefaultModel(t *testing.T) {
	p, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ModelID() != DefaultModel {
		t.Errorf("expected model %s, got %s", DefaultModel, p.ModelID())
	}
	if p.Dimensions() != 1536 {
		t.Errorf("expected 1536 dimensions, got %d", p.Dimensions())
	}
}

// TestNew_KnownModelDimensions checks the built-in dimensionality table.
func TestNew_KnownModelDimensions(t *testing.T) {
	p, err := New("sk-test", "text-embedding-3-large")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Dimensions() != 3072 {
		t.Errorf("expected 3072 dimensions, got %d", p.Dimensions())
	}
}

// TestNew_UnknownModelRequiresDimensions checks that a model outside the
// built-in table is rejected unless WithDimensions is provided.
func TestNew_UnknownModelRequiresDimensions(t *testing.T) {
	_, err := New("sk-test", "custom-embed-v1")
	if err == nil {
		t.Fatal("expected error for unknown model without dimensions")
	}

	p, err := New("sk-test", "custom-embed-v1", WithDimensions(768))
	if err != nil {
		t.Fatalf("unexpected error with explicit dimensions: %v", err)
	}
	if p.Dimensions() != 768 {
		t.Errorf("expected 768 dimensions, got %d", p.Dimensions())
	}
}

// TestNew_DimensionsOverride checks WithDimensions wins over the table.
func TestNew_DimensionsOverride(t *testing.T) {
	p, err := New("sk-test", "text-embedding-3-large", WithDimensions(256))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Dimensions() != 256 {
		t.Errorf("expected 256 dimensions, got %d", p.Dimensions())
	}
}

// TestFloat64ToFloat32 checks vector narrowing.
func TestFloat64ToFloat32(t *testing.T) {
	out := float64ToFloat32([]float64{0.5, -1.25, 0})
	if len(out) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(out))
	}
	if out[0] != 0.5 || out[1] != -1.25 || out[2] != 0 {
		t.Errorf("unexpected values: %v", out)
	}
	if got := float64ToFloat32(nil); len(got) != 0 {
		t.Errorf("expected empty output for nil input, got %v", got)
	}
}

package field

import (
	"errors"
	"testing"
	"time"

	"field-encryption-service/internal/domain"
)

func TestRegistry_RegisterAndResolve(t *testing.T) {
	def, err := NewEncrypted(Text{}, testConfig())
	if err != nil {
		t.Fatalf("NewEncrypted failed: %v", err)
	}
	named, err := NewEncrypted(Structured{}, testConfig())
	if err != nil {
		t.Fatalf("NewEncrypted failed: %v", err)
	}

	registry := NewRegistry(def)
	if err := registry.Register("profile", named); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, err := registry.Resolve("profile")
	if err != nil || got != named {
		t.Errorf("Resolve(profile) = %v, %v", got, err)
	}

	// 未登録名は既定フィールドにフォールバックする
	got, err = registry.Resolve("unknown")
	if err != nil || got != def {
		t.Errorf("Resolve(unknown) = %v, %v", got, err)
	}
}

func TestRegistry_Errors(t *testing.T) {
	registry := NewRegistry(nil)

	if _, err := registry.Resolve("missing"); !errors.Is(err, domain.ErrFieldNotFound) {
		t.Errorf("expected ErrFieldNotFound, got %v", err)
	}
	if err := registry.Register("", nil); !errors.Is(err, domain.ErrInvalidFieldName) {
		t.Errorf("expected ErrInvalidFieldName, got %v", err)
	}
	if err := registry.Register("x", nil); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration for nil field, got %v", err)
	}

	enc, err := NewEncrypted(Text{}, testConfig())
	if err != nil {
		t.Fatalf("NewEncrypted failed: %v", err)
	}
	if err := registry.Register("dup", enc); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := registry.Register("dup", enc); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration for duplicate, got %v", err)
	}
}

func TestRegistry_List(t *testing.T) {
	cfg := testConfig()
	cfg.TTL = 60 * time.Second
	enc, err := NewEncrypted(Text{MaxLength: 50}, cfg)
	if err != nil {
		t.Fatalf("NewEncrypted failed: %v", err)
	}

	registry := NewRegistry(nil)
	if err := registry.Register("ssn", enc); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	infos := registry.List()
	if len(infos) != 1 {
		t.Fatalf("expected 1 field, got %d", len(infos))
	}
	info := infos[0]
	if info.Name != "ssn" || info.Kind != "text" || info.Digest != "sha256" {
		t.Errorf("unexpected info: %+v", info)
	}
	if info.TTL != 60*time.Second {
		t.Errorf("expected TTL 60s, got %v", info.TTL)
	}
	if info.MaxSize == 0 {
		t.Error("bounded field must report a max size")
	}
}

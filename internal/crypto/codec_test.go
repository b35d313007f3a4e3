package crypto

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"field-encryption-service/internal/domain"
)

func newTestCodec(t *testing.T, secret string) *Codec {
	t.Helper()

	key, err := DeriveKey([]byte(secret), []byte("field-encryption"), "sha256", 1000)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	codec, err := NewCodec(key)
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	return codec
}

func TestNewCodec_RejectsBadKeySize(t *testing.T) {
	if _, err := NewCodec([]byte("short")); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := newTestCodec(t, "s3cr3t")
	now := time.Unix(1000, 0)

	payloads := [][]byte{
		[]byte("hello"),
		[]byte(""),
		[]byte{0x00, 0xff, 0x80, 0x7f},
		bytes.Repeat([]byte("x"), 4096),
	}

	for _, payload := range payloads {
		token, err := codec.Seal(payload, now)
		if err != nil {
			t.Fatalf("Seal failed: %v", err)
		}

		result, err := codec.Unseal(token, 0, now)
		if err != nil {
			t.Fatalf("Unseal failed: %v", err)
		}
		if result.Expired {
			t.Error("unexpected expiry without TTL")
		}
		if !bytes.Equal(result.Payload, payload) {
			t.Errorf("round trip mismatch: got %q, want %q", result.Payload, payload)
		}
	}
}

func TestCodec_RawRoundTrip(t *testing.T) {
	codec := newTestCodec(t, "s3cr3t")
	now := time.Unix(1000, 0)
	payload := []byte("binary column payload")

	raw, err := codec.SealRaw(payload, now)
	if err != nil {
		t.Fatalf("SealRaw failed: %v", err)
	}
	if len(raw) != Overhead+len(payload) {
		t.Errorf("raw token length = %d, want %d", len(raw), Overhead+len(payload))
	}

	result, err := codec.UnsealRaw(raw, 0, now)
	if err != nil {
		t.Fatalf("UnsealRaw failed: %v", err)
	}
	if !bytes.Equal(result.Payload, payload) {
		t.Errorf("raw round trip mismatch: got %q, want %q", result.Payload, payload)
	}

	// テキスト形式とバイナリ形式は同じトークンの二つの表現である
	text, err := codec.Seal(payload, now)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if _, err := codec.UnsealRaw(raw, 0, now); err != nil {
		t.Errorf("UnsealRaw rejected own output: %v", err)
	}
	if _, err := codec.Unseal(text, 0, now); err != nil {
		t.Errorf("Unseal rejected own output: %v", err)
	}
}

func TestCodec_SealNonDeterministic(t *testing.T) {
	codec := newTestCodec(t, "s3cr3t")
	now := time.Unix(1000, 0)

	token1, err := codec.Seal([]byte("hello"), now)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	token2, err := codec.Seal([]byte("hello"), now)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if token1 == token2 {
		t.Error("two seals of the same payload must produce different tokens")
	}
}

func TestCodec_TamperDetection(t *testing.T) {
	codec := newTestCodec(t, "s3cr3t")
	now := time.Unix(1000, 0)

	token, err := codec.Seal([]byte("hello"), now)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	raw, err := tokenEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("decoding test token failed: %v", err)
	}

	// どの1ビットを反転しても復号してはならない
	for i := range raw {
		tampered := make([]byte, len(raw))
		copy(tampered, raw)
		tampered[i] ^= 0x01

		_, err := codec.Unseal(tokenEncoding.EncodeToString(tampered), 0, now)
		if !errors.Is(err, domain.ErrInvalidToken) {
			t.Fatalf("bit flip at byte %d: expected ErrInvalidToken, got %v", i, err)
		}
	}
}

func TestCodec_WrongKey(t *testing.T) {
	codec := newTestCodec(t, "s3cr3t")
	other := newTestCodec(t, "rotated")
	now := time.Unix(1000, 0)

	token, err := codec.Seal([]byte("hello"), now)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if _, err := other.Unseal(token, 0, now); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("wrong key: expected ErrInvalidToken, got %v", err)
	}
}

func TestCodec_MalformedTokens(t *testing.T) {
	codec := newTestCodec(t, "s3cr3t")
	now := time.Unix(1000, 0)

	tests := []struct {
		name  string
		token string
	}{
		{"not base64", "not%%%base64"},
		{"empty", ""},
		{"too short", tokenEncoding.EncodeToString([]byte{tokenVersion, 1, 2, 3})},
		{"plaintext in column", "some plaintext value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := codec.Unseal(tt.token, 0, now); !errors.Is(err, domain.ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestCodec_UnknownVersion(t *testing.T) {
	codec := newTestCodec(t, "s3cr3t")
	now := time.Unix(1000, 0)

	token, err := codec.Seal([]byte("hello"), now)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	raw, _ := tokenEncoding.DecodeString(token)
	raw[0] = 0x81

	if _, err := codec.Unseal(tokenEncoding.EncodeToString(raw), 0, now); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestCodec_TTLBoundary(t *testing.T) {
	codec := newTestCodec(t, "s3cr3t")
	t0 := time.Unix(1000, 0)
	ttl := 60 * time.Second

	token, err := codec.Seal([]byte("hello"), t0)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	tests := []struct {
		name    string
		now     time.Time
		expired bool
	}{
		{"within ttl", t0.Add(30 * time.Second), false},
		{"exactly at boundary", t0.Add(ttl), false},
		{"one second past", t0.Add(ttl + time.Second), true},
		{"long past", t0.Add(100 * time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := codec.Unseal(token, ttl, tt.now)
			if err != nil {
				t.Fatalf("Unseal failed: %v", err)
			}
			if result.Expired != tt.expired {
				t.Errorf("expected expired=%v, got %v", tt.expired, result.Expired)
			}
			if !tt.expired && string(result.Payload) != "hello" {
				t.Errorf("expected payload %q, got %q", "hello", result.Payload)
			}
			if tt.expired && result.Payload != nil {
				t.Error("expired result must not carry a payload")
			}
		})
	}
}

func TestCodec_NoTTLNeverExpires(t *testing.T) {
	codec := newTestCodec(t, "s3cr3t")
	t0 := time.Unix(1000, 0)

	token, err := codec.Seal([]byte("hello"), t0)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	result, err := codec.Unseal(token, 0, t0.Add(1000*time.Hour))
	if err != nil {
		t.Fatalf("Unseal failed: %v", err)
	}
	if result.Expired {
		t.Error("token without TTL must not expire")
	}
}

func TestCodec_RejectsFutureTimestamp(t *testing.T) {
	codec := newTestCodec(t, "s3cr3t")
	now := time.Unix(1000, 0)

	token, err := codec.Seal([]byte("hello"), now.Add(2*maxClockSkew))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if _, err := codec.Unseal(token, 0, now); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for future timestamp, got %v", err)
	}

	// 許容スキュー内の未来は受け入れる
	token, err = codec.Seal([]byte("hello"), now.Add(30*time.Second))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if _, err := codec.Unseal(token, 0, now); err != nil {
		t.Errorf("timestamp within clock skew must be accepted, got %v", err)
	}
}

// TestCodec_EndToEndScenario はTTL付きテキスト値の一連の流れを検証する。
func TestCodec_EndToEndScenario(t *testing.T) {
	codec := newTestCodec(t, "s3cr3t")
	t0 := time.Unix(1000, 0)
	ttl := 60 * time.Second

	token, err := codec.Seal([]byte("hello"), t0)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	result, err := codec.Unseal(token, ttl, time.Unix(1030, 0))
	if err != nil {
		t.Fatalf("Unseal at t=1030 failed: %v", err)
	}
	if result.Expired || string(result.Payload) != "hello" {
		t.Errorf("at t=1030 expected %q, got %+v", "hello", result)
	}

	result, err = codec.Unseal(token, ttl, time.Unix(1100, 0))
	if err != nil {
		t.Fatalf("Unseal at t=1100 failed: %v", err)
	}
	if !result.Expired {
		t.Error("at t=1100 expected Expired")
	}

	raw, _ := tokenEncoding.DecodeString(token)
	raw[len(raw)-1] ^= 0xff
	if _, err := codec.Unseal(tokenEncoding.EncodeToString(raw), ttl, time.Unix(1030, 0)); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("altered last byte: expected ErrInvalidToken, got %v", err)
	}
}

func TestEncodedTokenSize(t *testing.T) {
	codec := newTestCodec(t, "s3cr3t")
	now := time.Unix(1000, 0)

	for _, n := range []int{0, 1, 5, 100, 255} {
		token, err := codec.Seal(bytes.Repeat([]byte("a"), n), now)
		if err != nil {
			t.Fatalf("Seal failed: %v", err)
		}
		if len(token) != EncodedTokenSize(n) {
			t.Errorf("payload %d: expected token size %d, got %d", n, EncodedTokenSize(n), len(token))
		}
	}
}

// Package crypto は鍵導出と認証付き暗号化コーデックを提供する。
package crypto

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"sync"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/pbkdf2"

	"field-encryption-service/internal/domain"
)

const (
	// KeySize は導出鍵の長さ（AES-256）。
	KeySize = 32

	// DefaultIterations はPBKDF2の既定反復回数。
	DefaultIterations = 30000
)

// digests はダイジェスト名とハッシュコンストラクタの対応表。
var digests = map[string]func() hash.Hash{
	"sha1":       sha1.New,
	"sha224":     sha256.New224,
	"sha256":     sha256.New,
	"sha384":     sha512.New384,
	"sha512":     sha512.New,
	"sha512_224": sha512.New512_224,
	"sha512_256": sha512.New512_256,
	"blake2b": func() hash.Hash {
		h, _ := blake2b.New512(nil)
		return h
	},
	"blake2s": func() hash.Hash {
		h, _ := blake2s.New256(nil)
		return h
	},
}

// SupportedDigest はダイジェスト名が鍵導出に使用可能かを返す。
func SupportedDigest(name string) bool {
	_, ok := digests[name]
	return ok
}

// DeriveKey はシークレットとソルトからPBKDF2で対称鍵を導出する。
// 同一の入力からは常に同一の鍵が導出される。副作用はなく並行呼び出しに安全。
func DeriveKey(secret, salt []byte, digest string, iterations int) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: empty secret", domain.ErrConfiguration)
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("%w: empty salt", domain.ErrConfiguration)
	}
	if iterations < 1 {
		iterations = DefaultIterations
	}
	h, ok := digests[digest]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported digest %q", domain.ErrConfiguration, digest)
	}
	return pbkdf2.Key(secret, salt, iterations, KeySize, h), nil
}

// KeyCache は導出済み鍵のキャッシュ。読み取り主体の並行アクセスを想定する。
// キャッシュミス時は常にDeriveKeyと同一の鍵を再計算するため、正しさはキャッシュに依存しない。
type KeyCache struct {
	mu   sync.RWMutex
	keys map[string][]byte
}

// NewKeyCache は新しいKeyCacheを生成する。
func NewKeyCache() *KeyCache {
	return &KeyCache{keys: make(map[string][]byte)}
}

func cacheKey(secret, salt []byte, digest string, iterations int) string {
	sum := sha256.New()
	sum.Write(secret)
	sum.Write([]byte{0})
	sum.Write(salt)
	return fmt.Sprintf("%s:%d:%x", digest, iterations, sum.Sum(nil))
}

// Derive はキャッシュ済みの鍵を返すか、未導出であれば導出して保存する。
func (c *KeyCache) Derive(secret, salt []byte, digest string, iterations int) ([]byte, error) {
	k := cacheKey(secret, salt, digest, iterations)

	c.mu.RLock()
	key, ok := c.keys[k]
	c.mu.RUnlock()
	if ok {
		return key, nil
	}

	key, err := DeriveKey(secret, salt, digest, iterations)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.keys[k] = key
	c.mu.Unlock()
	return key, nil
}

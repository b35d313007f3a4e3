package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"field-encryption-service/internal/domain"
)

const (
	// tokenVersion はトークン形式のバージョンバイト。
	tokenVersion = 0x80

	// NonceSize はAES-GCMのノンス長。
	NonceSize = 12

	headerSize = 9 // バージョン(1) + タイムスタンプ(8)
	tagSize    = 16

	// Overhead はペイロードに対するトークンのエンコード前オーバーヘッド。
	Overhead = headerSize + NonceSize + tagSize

	// maxClockSkew は許容する時計のずれ。これより未来のタイムスタンプを持つトークンは拒否する。
	maxClockSkew = 60 * time.Second
)

// tokenEncoding は格納用のテキストセーフなエンコーディング。
var tokenEncoding = base64.URLEncoding

// Plaintext はUnsealの結果を表す。
// Expiredがtrueの場合、トークンは真正だがTTLを超過しており、Payloadは使用してはならない。
type Plaintext struct {
	Payload []byte
	Expired bool
}

// Codec は導出鍵によるAES-256-GCMの認証付き暗号化コーデック。
// 並行呼び出しに安全で、状態を持たない。
//
// 制限事項: マスターシークレットを変更すると、過去にSealしたすべてのトークンは
// 恒久的にErrInvalidTokenとなる。鍵バージョニングは意図的にサポートしない。
type Codec struct {
	aead cipher.AEAD
}

// NewCodec は32バイトの導出鍵からCodecを生成する。
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", domain.ErrConfiguration, KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	return &Codec{aead: aead}, nil
}

// Seal はペイロードを暗号化し、作成時刻を埋め込んだ自己記述的なトークンを返す。
// トークン形式: base64url( 0x80 || be64(unix秒) || nonce || 暗号文+認証タグ )。
// ヘッダは認証対象データとして暗号化されるため、タイムスタンプの改ざんも検出される。
func (c *Codec) Seal(payload []byte, now time.Time) (string, error) {
	token, err := c.SealRaw(payload, now)
	if err != nil {
		return "", err
	}
	return tokenEncoding.EncodeToString(token), nil
}

// SealRaw はSealと同じトークンをエンコード前のバイト列で返す。
// バイナリカラムに直接格納する場合に使う。
func (c *Codec) SealRaw(payload []byte, now time.Time) ([]byte, error) {
	header := make([]byte, headerSize)
	header[0] = tokenVersion
	binary.BigEndian.PutUint64(header[1:], uint64(now.Unix()))

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	token := make([]byte, 0, Overhead+len(payload))
	token = append(token, header...)
	token = append(token, nonce...)
	token = c.aead.Seal(token, nonce, payload, header)

	return token, nil
}

// Unseal はトークンを検証・復号する。
// 完全性検証を先に行い、成功した場合のみTTLを評価する。
// 不正な形式、改ざん、鍵違いはすべてErrInvalidTokenとなる。
// TTL超過はエラーではなく、Expiredを立てた結果として返す。
func (c *Codec) Unseal(token string, ttl time.Duration, now time.Time) (Plaintext, error) {
	data, err := tokenEncoding.DecodeString(token)
	if err != nil {
		return Plaintext{}, fmt.Errorf("%w: malformed encoding", domain.ErrInvalidToken)
	}
	return c.UnsealRaw(data, ttl, now)
}

// UnsealRaw はエンコード前のバイト列トークンを検証・復号する。
func (c *Codec) UnsealRaw(data []byte, ttl time.Duration, now time.Time) (Plaintext, error) {
	if len(data) < Overhead {
		return Plaintext{}, fmt.Errorf("%w: token too short", domain.ErrInvalidToken)
	}
	if data[0] != tokenVersion {
		return Plaintext{}, fmt.Errorf("%w: unknown version 0x%02x", domain.ErrInvalidToken, data[0])
	}

	header := data[:headerSize]
	nonce := data[headerSize : headerSize+NonceSize]
	sealed := data[headerSize+NonceSize:]

	payload, err := c.aead.Open(nil, nonce, sealed, header)
	if err != nil {
		return Plaintext{}, fmt.Errorf("%w: integrity check failed", domain.ErrInvalidToken)
	}

	created := time.Unix(int64(binary.BigEndian.Uint64(header[1:])), 0)
	if created.After(now.Add(maxClockSkew)) {
		return Plaintext{}, fmt.Errorf("%w: timestamp too far in the future", domain.ErrInvalidToken)
	}
	if ttl > 0 && now.Sub(created) > ttl {
		return Plaintext{Expired: true}, nil
	}

	return Plaintext{Payload: payload}, nil
}

// EncodedTokenSize はペイロード長に対する格納時のトークン長を返す。
func EncodedTokenSize(payloadSize int) int {
	return tokenEncoding.EncodedLen(Overhead + payloadSize)
}

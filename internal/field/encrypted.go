package field

import (
	"fmt"
	"time"

	"field-encryption-service/config"
	"field-encryption-service/internal/crypto"
	"field-encryption-service/internal/domain"
)

// ExpiredValue はTTL超過を表す番兵値の型。
type ExpiredValue struct{}

func (ExpiredValue) String() string { return "<expired>" }

// Expired はプロセス全体で共有される不変の番兵値。
// 「値は存在したが有効期間を過ぎた」ことを表し、nil（不在）とも復号失敗とも区別される。
var Expired = ExpiredValue{}

// Config は暗号化フィールドの設定。フィールド宣言時に一度だけ構築し、以後変更しない。
type Config struct {
	// Secret は鍵導出に使うシークレット。フィールド固有の明示鍵か、
	// プロセス全体のマスターシークレットを呼び出し側が渡す。
	Secret []byte
	// Salt は鍵導出ソルト。空の場合は既定のソルトを使う。
	Salt []byte
	// Digest は鍵導出ダイジェスト。空の場合はsha256。
	Digest string
	// Iterations はPBKDF2の反復回数。0の場合は既定値。
	Iterations int
	// TTL は値の有効期間。0は無期限。
	TTL time.Duration
}

// keyCache はプロセス全体で共有される導出鍵キャッシュ。
// 同一のシークレット・ソルト・ダイジェストを使う複数フィールドの導出を一度で済ませる。
var keyCache = crypto.NewKeyCache()

// Encrypted は任意のベースフィールドに透過的な暗号化を合成するラッパー。
// 検証・既定値・ルックアップはベースフィールドに委譲し、
// ストレージ変換のみトランスコーダと認証付きコーデックを経由する。
type Encrypted struct {
	base   Field
	trans  Transcoder
	codec  *crypto.Codec
	ttl    time.Duration
	digest string
	now    func() time.Time
}

// NewEncrypted はベースフィールドを暗号化でラップする。
// 参照フィールド、一意制約・インデックス付きフィールド、不正な鍵素材は
// この時点でdomain.ErrConfigurationとして拒否され、初回使用時まで持ち越されない。
func NewEncrypted(base Field, cfg Config) (*Encrypted, error) {
	if base == nil {
		return nil, fmt.Errorf("%w: base field is nil", domain.ErrConfiguration)
	}
	if _, ok := base.(Relational); ok {
		return nil, fmt.Errorf("%w: base field for encryption cannot be a reference field", domain.ErrConfiguration)
	}
	if c := base.Constraints(); c.Unique || c.Indexed {
		// 暗号文は非決定的なため、一意制約や等価ルックアップは決して一致しない
		return nil, fmt.Errorf("%w: encrypted field cannot be unique or indexed", domain.ErrConfiguration)
	}

	if cfg.Digest == "" {
		cfg.Digest = "sha256"
	}
	if len(cfg.Salt) == 0 {
		cfg.Salt = []byte(config.DefaultSalt)
	}
	if cfg.TTL < 0 {
		return nil, fmt.Errorf("%w: negative TTL", domain.ErrConfiguration)
	}

	key, err := keyCache.Derive(cfg.Secret, cfg.Salt, cfg.Digest, cfg.Iterations)
	if err != nil {
		return nil, err
	}
	codec, err := crypto.NewCodec(key)
	if err != nil {
		return nil, err
	}
	trans, err := transcoderFor(base.Kind())
	if err != nil {
		return nil, err
	}

	return &Encrypted{
		base:   base,
		trans:  trans,
		codec:  codec,
		ttl:    cfg.TTL,
		digest: cfg.Digest,
		now:    time.Now,
	}, nil
}

// Kind はベースフィールドの種別を返す。
func (e *Encrypted) Kind() Kind { return e.base.Kind() }

// Validate は平文のネイティブ値に対してベースフィールドの検証を委譲する。
// 検証が暗号文を見ることはない。
func (e *Encrypted) Validate(value any) error { return e.base.Validate(value) }

// Default はベースフィールドの既定値を返す。
func (e *Encrypted) Default() any { return e.base.Default() }

// TTL は設定された有効期間を返す。
func (e *Encrypted) TTL() time.Duration { return e.ttl }

// Digest は鍵導出に使うダイジェスト名を返す。
func (e *Encrypted) Digest() string { return e.digest }

// EncodeStorage はネイティブ値をトランスコードし、封印したトークンを返す。
// 変換できない値はdomain.ErrSerializationとなり、何も永続化されない。
func (e *Encrypted) EncodeStorage(value any) (string, error) {
	payload, err := e.trans.Encode(value)
	if err != nil {
		return "", err
	}
	return e.codec.Seal(payload, e.now())
}

// DecodeStorage は格納されたトークンを検証・復号してネイティブ値を返す。
// TTL超過の場合はExpired番兵値を返す。完全性検証の失敗は
// domain.ErrInvalidTokenとしてそのまま伝播し、既定値で代替されることはない。
func (e *Encrypted) DecodeStorage(stored string) (any, error) {
	result, err := e.codec.Unseal(stored, e.ttl, e.now())
	if err != nil {
		return nil, err
	}
	if result.Expired {
		return Expired, nil
	}
	return e.trans.Decode(result.Payload)
}

// SealStored は既に保存表現になっている平文文字列を封印してトークンを返す。
// 既存カラムの一括変換のように、ネイティブ値を経由しない経路で使う。
func (e *Encrypted) SealStored(plain string) (string, error) {
	return e.codec.Seal([]byte(plain), e.now())
}

// UnsealStored はトークンを検証・復号し、保存表現の平文文字列を返す。
// 戻り値のboolはTTL超過を表し、trueのとき平文は空文字列となる。
func (e *Encrypted) UnsealStored(token string) (string, bool, error) {
	result, err := e.codec.Unseal(token, e.ttl, e.now())
	if err != nil {
		return "", false, err
	}
	if result.Expired {
		return "", true, nil
	}
	return string(result.Payload), false, nil
}

// MaxStorageSize はベースの最大長にトークンのオーバーヘッドを加えた宣言長を返す。
func (e *Encrypted) MaxStorageSize() int {
	baseSize := e.base.MaxStorageSize()
	if baseSize == 0 {
		return 0
	}
	return crypto.EncodedTokenSize(baseSize)
}

// Constraints は常に制約なしを返す。一意制約やインデックスは設定時に拒否済み。
func (e *Encrypted) Constraints() Constraints { return Constraints{} }

// SupportsLookup は暗号化フィールドに対してはnull判定のみを許可する。
func (e *Encrypted) SupportsLookup(name string) bool { return name == "isnull" }

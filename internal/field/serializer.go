package field

import (
	"context"
	"fmt"
	"reflect"

	"gorm.io/gorm/schema"

	"field-encryption-service/internal/domain"
)

// EncryptedString は暗号化されて格納される文字列カラムの型。
// TTL超過をゼロ値と区別する必要があるモデルで使う。
type EncryptedString struct {
	Plain   string
	Expired bool
}

// GormDataType は格納カラムの型を返す。
func (EncryptedString) GormDataType() string { return "text" }

// EncryptedJSON は暗号化されて格納される構造化値カラムの型。
// Dataにはプリミティブ・リスト・文字列キーのマップのみを保持できる。
type EncryptedJSON struct {
	Data    any
	Expired bool
}

// GormDataType は格納カラムの型を返す。
func (EncryptedJSON) GormDataType() string { return "text" }

var (
	encryptedStringType = reflect.TypeOf(EncryptedString{})
	encryptedJSONType   = reflect.TypeOf(EncryptedJSON{})
)

// Serializer はgormのserializer機構に乗せた透過暗号化の実装。
// `gorm:"serializer:encrypted"` が付いたカラムは書き込み時に封印され、
// 読み取り時に復号される。フィールド設定はカラム名でRegistryから解決される。
type Serializer struct {
	registry *Registry
}

// RegisterSerializer はRegistryに紐づくserializerを"encrypted"として登録する。
// プロセス起動時に一度だけ呼ぶ。
func RegisterSerializer(registry *Registry) {
	schema.RegisterSerializer("encrypted", Serializer{registry: registry})
}

// fieldFor はモデルフィールドに対応する暗号化フィールド設定を解決する。
// DBカラム名、Goフィールド名、既定フィールドの順で探す。
func (s Serializer) fieldFor(f *schema.Field) (*Encrypted, error) {
	if enc, ok := s.registry.Get(f.DBName); ok {
		return enc, nil
	}
	if enc, ok := s.registry.Get(f.Name); ok {
		return enc, nil
	}
	if def := s.registry.Default(); def != nil {
		return def, nil
	}
	return nil, fmt.Errorf("%w: no encrypted field configured for column %q", domain.ErrFieldNotFound, f.DBName)
}

// Scan は格納トークンを復号してモデルフィールドに設定する。
// 完全性検証の失敗は読み取りエラーとして伝播する。
func (s Serializer) Scan(ctx context.Context, f *schema.Field, dst reflect.Value, dbValue interface{}) error {
	if dbValue == nil {
		return f.Set(ctx, dst, nil)
	}

	var token string
	switch v := dbValue.(type) {
	case string:
		token = v
	case []byte:
		token = string(v)
	default:
		return fmt.Errorf("%w: unexpected column type %T", domain.ErrInvalidToken, dbValue)
	}

	enc, err := s.fieldFor(f)
	if err != nil {
		return err
	}

	value, err := enc.DecodeStorage(token)
	if err != nil {
		return fmt.Errorf("column %q: %w", f.DBName, err)
	}

	expired := value == any(Expired)
	switch f.FieldType {
	case encryptedStringType:
		if expired {
			return f.Set(ctx, dst, EncryptedString{Expired: true})
		}
		plain, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: column %q decoded to %T, not string", domain.ErrSerialization, f.DBName, value)
		}
		return f.Set(ctx, dst, EncryptedString{Plain: plain})
	case encryptedJSONType:
		if expired {
			return f.Set(ctx, dst, EncryptedJSON{Expired: true})
		}
		return f.Set(ctx, dst, EncryptedJSON{Data: value})
	}

	if expired {
		// 素の型は期限切れをゼロ値と区別できないため、読み取りエラーとして伝播する。
		return fmt.Errorf("%w: column %q needs EncryptedString or EncryptedJSON to observe expiry", domain.ErrValueExpired, f.DBName)
	}
	return f.Set(ctx, dst, value)
}

// Value はモデルフィールドの平文値を封印して格納値を返す。
func (s Serializer) Value(ctx context.Context, f *schema.Field, dst reflect.Value, fieldValue interface{}) (interface{}, error) {
	if fieldValue == nil {
		return nil, nil
	}

	enc, err := s.fieldFor(f)
	if err != nil {
		return nil, err
	}

	switch v := fieldValue.(type) {
	case EncryptedString:
		return enc.EncodeStorage(v.Plain)
	case EncryptedJSON:
		return enc.EncodeStorage(v.Data)
	default:
		return enc.EncodeStorage(fieldValue)
	}
}

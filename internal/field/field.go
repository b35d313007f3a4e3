// Package field はレコードフィールドの抽象と、その透過的な暗号化ラッパーを提供する。
package field

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"time"

	"field-encryption-service/internal/domain"
)

// Kind はフィールドのネイティブ値の種別を表す。
type Kind string

const (
	KindText       Kind = "text"
	KindBinary     Kind = "binary"
	KindInteger    Kind = "integer"
	KindFloat      Kind = "float"
	KindBoolean    Kind = "boolean"
	KindDateTime   Kind = "datetime"
	KindStructured Kind = "structured"
	KindReference  Kind = "reference"
)

// Constraints はストレージレベルの制約を表す。
type Constraints struct {
	Unique  bool
	Indexed bool
}

// Field はホストのレコードフレームワークが要求するフィールド能力の集合。
// 暗号化ラッパーと素のフィールドの双方が実装し、外からは区別がつかない。
type Field interface {
	// Kind はネイティブ値の種別を返す。
	Kind() Kind
	// Validate はネイティブ値（平文）を検証する。
	Validate(value any) error
	// Default は既定値を返す。
	Default() any
	// EncodeStorage はネイティブ値をストレージ表現（テキスト）に変換する。
	EncodeStorage(value any) (string, error)
	// DecodeStorage はストレージ表現をネイティブ値に戻す。
	DecodeStorage(stored string) (any, error)
	// MaxStorageSize は宣言されたストレージ上の最大長を返す（0は無制限）。
	MaxStorageSize() int
	// Constraints はストレージレベルの制約を返す。
	Constraints() Constraints
	// SupportsLookup は指定のクエリルックアップが許可されているかを返す。
	SupportsLookup(name string) bool
}

// Relational は参照（外部キー相当）フィールドが実装するマーカー。
// 参照フィールドは暗号化でラップできない。
type Relational interface {
	References() string
}

// Text はテキスト値のフィールド。
type Text struct {
	MaxLength    int
	Required     bool
	Choices      []string
	DefaultValue string
	Unique       bool
	Indexed      bool
}

func (f Text) Kind() Kind { return KindText }

// Validate は型・必須・選択肢・長さを検証する。
func (f Text) Validate(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	if f.Required && s == "" {
		return fmt.Errorf("value is required")
	}
	if f.MaxLength > 0 && len(s) > f.MaxLength {
		return fmt.Errorf("value exceeds max length %d", f.MaxLength)
	}
	if len(f.Choices) > 0 {
		for _, c := range f.Choices {
			if s == c {
				return nil
			}
		}
		return fmt.Errorf("value %q is not a valid choice", s)
	}
	return nil
}

func (f Text) Default() any { return f.DefaultValue }

func (f Text) EncodeStorage(value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", value)
	}
	return s, nil
}

func (f Text) DecodeStorage(stored string) (any, error) { return stored, nil }

func (f Text) MaxStorageSize() int { return f.MaxLength }

func (f Text) Constraints() Constraints { return Constraints{Unique: f.Unique, Indexed: f.Indexed} }

func (f Text) SupportsLookup(name string) bool {
	switch name {
	case "exact", "in", "isnull", "contains", "startswith", "endswith":
		return true
	}
	return false
}

// Integer は整数値のフィールド。
type Integer struct {
	Required     bool
	DefaultValue int64
	Unique       bool
	Indexed      bool
}

func (f Integer) Kind() Kind { return KindInteger }

func (f Integer) Validate(value any) error {
	if _, err := toInt64(value); err != nil {
		return err
	}
	return nil
}

func (f Integer) Default() any { return f.DefaultValue }

func (f Integer) EncodeStorage(value any) (string, error) {
	n, err := toInt64(value)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n, 10), nil
}

func (f Integer) DecodeStorage(stored string) (any, error) {
	n, err := strconv.ParseInt(stored, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing stored integer: %w", err)
	}
	return n, nil
}

// MaxStorageSize は符号付き64bit整数の10進表現の最大長。
func (f Integer) MaxStorageSize() int { return 20 }

func (f Integer) Constraints() Constraints {
	return Constraints{Unique: f.Unique, Indexed: f.Indexed}
}

func (f Integer) SupportsLookup(name string) bool {
	switch name {
	case "exact", "in", "isnull", "lt", "lte", "gt", "gte":
		return true
	}
	return false
}

func toInt64(value any) (int64, error) {
	switch n := value.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("integer %d overflows signed range", n)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", value)
	}
}

// Float は浮動小数点値のフィールド。
type Float struct {
	Required bool
	Unique   bool
	Indexed  bool
}

func (f Float) Kind() Kind { return KindFloat }

func (f Float) Validate(value any) error {
	switch value.(type) {
	case float32, float64:
		return nil
	}
	return fmt.Errorf("expected float, got %T", value)
}

func (f Float) Default() any { return float64(0) }

func (f Float) EncodeStorage(value any) (string, error) {
	switch n := value.(type) {
	case float32:
		return strconv.FormatFloat(float64(n), 'g', -1, 64), nil
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64), nil
	}
	return "", fmt.Errorf("expected float, got %T", value)
}

func (f Float) DecodeStorage(stored string) (any, error) {
	n, err := strconv.ParseFloat(stored, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing stored float: %w", err)
	}
	return n, nil
}

func (f Float) MaxStorageSize() int { return 32 }

func (f Float) Constraints() Constraints { return Constraints{Unique: f.Unique, Indexed: f.Indexed} }

func (f Float) SupportsLookup(name string) bool {
	switch name {
	case "exact", "isnull", "lt", "lte", "gt", "gte":
		return true
	}
	return false
}

// Boolean は真偽値のフィールド。
type Boolean struct {
	DefaultValue bool
}

func (f Boolean) Kind() Kind { return KindBoolean }

func (f Boolean) Validate(value any) error {
	if _, ok := value.(bool); !ok {
		return fmt.Errorf("expected bool, got %T", value)
	}
	return nil
}

func (f Boolean) Default() any { return f.DefaultValue }

func (f Boolean) EncodeStorage(value any) (string, error) {
	b, ok := value.(bool)
	if !ok {
		return "", fmt.Errorf("expected bool, got %T", value)
	}
	return strconv.FormatBool(b), nil
}

func (f Boolean) DecodeStorage(stored string) (any, error) {
	b, err := strconv.ParseBool(stored)
	if err != nil {
		return nil, fmt.Errorf("parsing stored bool: %w", err)
	}
	return b, nil
}

func (f Boolean) MaxStorageSize() int { return 5 }

func (f Boolean) Constraints() Constraints { return Constraints{} }

func (f Boolean) SupportsLookup(name string) bool {
	return name == "exact" || name == "isnull"
}

// DateTime は日時値のフィールド。ストレージ表現はRFC 3339。
type DateTime struct {
	Required bool
	Indexed  bool
}

func (f DateTime) Kind() Kind { return KindDateTime }

func (f DateTime) Validate(value any) error {
	t, ok := value.(time.Time)
	if !ok {
		return fmt.Errorf("expected time.Time, got %T", value)
	}
	if f.Required && t.IsZero() {
		return fmt.Errorf("value is required")
	}
	return nil
}

func (f DateTime) Default() any { return time.Time{} }

func (f DateTime) EncodeStorage(value any) (string, error) {
	t, ok := value.(time.Time)
	if !ok {
		return "", fmt.Errorf("expected time.Time, got %T", value)
	}
	return t.UTC().Format(time.RFC3339Nano), nil
}

func (f DateTime) DecodeStorage(stored string) (any, error) {
	t, err := time.Parse(time.RFC3339Nano, stored)
	if err != nil {
		return nil, fmt.Errorf("parsing stored datetime: %w", err)
	}
	return t, nil
}

func (f DateTime) MaxStorageSize() int { return 35 }

func (f DateTime) Constraints() Constraints { return Constraints{Indexed: f.Indexed} }

func (f DateTime) SupportsLookup(name string) bool {
	switch name {
	case "exact", "isnull", "lt", "lte", "gt", "gte", "range":
		return true
	}
	return false
}

// Binary はバイト列のフィールド。ストレージ表現はBase64。
type Binary struct {
	MaxLength int
}

func (f Binary) Kind() Kind { return KindBinary }

func (f Binary) Validate(value any) error {
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("expected []byte, got %T", value)
	}
	if f.MaxLength > 0 && len(b) > f.MaxLength {
		return fmt.Errorf("value exceeds max length %d", f.MaxLength)
	}
	return nil
}

func (f Binary) Default() any { return []byte(nil) }

func (f Binary) EncodeStorage(value any) (string, error) {
	b, ok := value.([]byte)
	if !ok {
		return "", fmt.Errorf("expected []byte, got %T", value)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func (f Binary) DecodeStorage(stored string) (any, error) {
	b, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return nil, fmt.Errorf("parsing stored binary: %w", err)
	}
	return b, nil
}

func (f Binary) MaxStorageSize() int {
	if f.MaxLength == 0 {
		return 0
	}
	return base64.StdEncoding.EncodedLen(f.MaxLength)
}

func (f Binary) Constraints() Constraints { return Constraints{} }

func (f Binary) SupportsLookup(name string) bool { return name == "isnull" }

// Structured は構造化された複合値のフィールド。
// プリミティブ、リスト、文字列キーのマップに限定したJSON形状のみを受け付ける。
type Structured struct {
	Required bool
}

func (f Structured) Kind() Kind { return KindStructured }

func (f Structured) Validate(value any) error {
	return checkStructured(value, 0)
}

func (f Structured) Default() any { return nil }

func (f Structured) EncodeStorage(value any) (string, error) {
	payload, err := structuredTranscoder{}.Encode(value)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func (f Structured) DecodeStorage(stored string) (any, error) {
	return structuredTranscoder{}.Decode([]byte(stored))
}

func (f Structured) MaxStorageSize() int { return 0 }

func (f Structured) Constraints() Constraints { return Constraints{} }

// SupportsLookup は構造化フィールドに許可されたルックアップを返す。
func (f Structured) SupportsLookup(name string) bool {
	switch name {
	case "exact", "in", "isnull":
		return true
	}
	return false
}

// Reference は他レコードへの参照フィールド。暗号化でラップすると
// 参照整合性とインデックスが壊れるため、ラップは設定時に拒否される。
type Reference struct {
	Target  string // 参照先テーブル
	Indexed bool
}

func (f Reference) Kind() Kind { return KindReference }

// References はRelationalマーカーを実装する。
func (f Reference) References() string { return f.Target }

func (f Reference) Validate(value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("expected string key, got %T", value)
	}
	return nil
}

func (f Reference) Default() any { return "" }

func (f Reference) EncodeStorage(value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("expected string key, got %T", value)
	}
	return s, nil
}

func (f Reference) DecodeStorage(stored string) (any, error) { return stored, nil }

func (f Reference) MaxStorageSize() int { return 36 }

func (f Reference) Constraints() Constraints { return Constraints{Indexed: f.Indexed} }

func (f Reference) SupportsLookup(name string) bool {
	return name == "exact" || name == "in" || name == "isnull"
}

// checkStructured は値がホワイトリストされたJSON形状であることを確認する。
func checkStructured(value any, depth int) error {
	if depth > 64 {
		return fmt.Errorf("%w: nesting too deep", domain.ErrSerialization)
	}
	switch v := value.(type) {
	case nil, bool, string, int32, float32:
		return nil
	case int:
		return checkStructuredInt(int64(v))
	case int64:
		return checkStructuredInt(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite float", domain.ErrSerialization)
		}
		return nil
	case []any:
		for _, item := range v {
			if err := checkStructured(item, depth+1); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		for _, item := range v {
			if err := checkStructured(item, depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported type %T", domain.ErrSerialization, value)
	}
}

// maxExactInt はfloat64で正確に表現できる整数の上限（2^53）。
// JSON経由の復号はfloat64になるため、これを超える整数は往復で値が変わる。
const maxExactInt = int64(1) << 53

// checkStructuredInt は整数がJSON往復で値を保てる範囲にあることを確認する。
func checkStructuredInt(v int64) error {
	if v > maxExactInt || v < -maxExactInt {
		return fmt.Errorf("%w: integer %d exceeds exact range", domain.ErrSerialization, v)
	}
	return nil
}

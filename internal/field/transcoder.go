package field

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"field-encryption-service/internal/domain"
)

// Transcoder はネイティブ値と暗号化対象のバイト列ペイロードを相互変換する。
// どのトランスコーダを使うかはフィールド設定時にKindから一度だけ決定される。
type Transcoder interface {
	Encode(value any) ([]byte, error)
	Decode(payload []byte) (any, error)
}

// transcoderFor はフィールド種別に対応するトランスコーダを返す。
func transcoderFor(kind Kind) (Transcoder, error) {
	switch kind {
	case KindText:
		return textTranscoder{}, nil
	case KindBinary:
		return binaryTranscoder{}, nil
	case KindInteger:
		return integerTranscoder{}, nil
	case KindFloat:
		return floatTranscoder{}, nil
	case KindBoolean:
		return booleanTranscoder{}, nil
	case KindDateTime:
		return dateTimeTranscoder{}, nil
	case KindStructured:
		return structuredTranscoder{}, nil
	default:
		return nil, fmt.Errorf("%w: no transcoder for kind %q", domain.ErrConfiguration, kind)
	}
}

// textTranscoder はテキストとUTF-8バイト列を相互変換する。
type textTranscoder struct{}

func (textTranscoder) Encode(value any) ([]byte, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("%w: expected string, got %T", domain.ErrSerialization, value)
	}
	return []byte(s), nil
}

func (textTranscoder) Decode(payload []byte) (any, error) {
	return string(payload), nil
}

// binaryTranscoder はバイト列をそのまま通す。
type binaryTranscoder struct{}

func (binaryTranscoder) Encode(value any) ([]byte, error) {
	b, ok := value.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: expected []byte, got %T", domain.ErrSerialization, value)
	}
	return b, nil
}

func (binaryTranscoder) Decode(payload []byte) (any, error) {
	return payload, nil
}

type integerTranscoder struct{}

func (integerTranscoder) Encode(value any) ([]byte, error) {
	n, err := toInt64(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}
	return []byte(strconv.FormatInt(n, 10)), nil
}

func (integerTranscoder) Decode(payload []byte) (any, error) {
	n, err := strconv.ParseInt(string(payload), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}
	return n, nil
}

type floatTranscoder struct{}

func (floatTranscoder) Encode(value any) ([]byte, error) {
	var f float64
	switch n := value.(type) {
	case float32:
		f = float64(n)
	case float64:
		f = n
	default:
		return nil, fmt.Errorf("%w: expected float, got %T", domain.ErrSerialization, value)
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

func (floatTranscoder) Decode(payload []byte) (any, error) {
	f, err := strconv.ParseFloat(string(payload), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}
	return f, nil
}

type booleanTranscoder struct{}

func (booleanTranscoder) Encode(value any) ([]byte, error) {
	b, ok := value.(bool)
	if !ok {
		return nil, fmt.Errorf("%w: expected bool, got %T", domain.ErrSerialization, value)
	}
	return []byte(strconv.FormatBool(b)), nil
}

func (booleanTranscoder) Decode(payload []byte) (any, error) {
	b, err := strconv.ParseBool(string(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}
	return b, nil
}

type dateTimeTranscoder struct{}

func (dateTimeTranscoder) Encode(value any) ([]byte, error) {
	t, ok := value.(time.Time)
	if !ok {
		return nil, fmt.Errorf("%w: expected time.Time, got %T", domain.ErrSerialization, value)
	}
	return []byte(t.UTC().Format(time.RFC3339Nano)), nil
}

func (dateTimeTranscoder) Decode(payload []byte) (any, error) {
	t, err := time.Parse(time.RFC3339Nano, string(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}
	return t, nil
}

// structuredTranscoder は構造化値をJSONで相互変換する。
// 受け付ける形状はプリミティブ・リスト・文字列キーのマップに限定される。
type structuredTranscoder struct{}

func (structuredTranscoder) Encode(value any) ([]byte, error) {
	if err := checkStructured(value, 0); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}
	return payload, nil
}

func (structuredTranscoder) Decode(payload []byte) (any, error) {
	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}
	return value, nil
}

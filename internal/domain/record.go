// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import "time"

// RecordStatus は保護レコードの読み取り結果の状態を表す。
type RecordStatus string

const (
	// RecordStatusValid は復号に成功した有効な値を表す。
	RecordStatusValid RecordStatus = "valid"
	// RecordStatusExpired は復号には成功したがTTLを超過した値を表す。
	RecordStatusExpired RecordStatus = "expired"
)

// ProtectedRecord は暗号化されて保存される名前付きレコードを表す。
// Valueは常に平文であり、暗号化は永続化層で透過的に行われる。
type ProtectedRecord struct {
	ID        string
	Name      string
	FieldName string
	Value     string
	Status    RecordStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DecryptResult は復号操作の結果を表す。
// ExpiredがtrueのときValueはnilであり、平文は返されない。
type DecryptResult struct {
	Value   any
	Expired bool
}

// FieldInfo は登録済み暗号化フィールドのメタデータを表す（鍵素材を含まない）。
type FieldInfo struct {
	Name    string
	Kind    string
	Digest  string
	TTL     time.Duration
	MaxSize int
}

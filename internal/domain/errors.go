package domain

import "errors"

var (
	// ErrConfiguration はフィールド設定が不正な場合のエラー。
	// 宣言時に検出され、値の読み書き時には発生しない。
	ErrConfiguration = errors.New("invalid field configuration")

	// ErrSerialization は値を選択されたトランスコーダでバイト列に変換できない場合のエラー。
	ErrSerialization = errors.New("value is not serializable")

	// ErrInvalidToken は暗号文トークンの完全性検証に失敗した場合のエラー。
	// 破損、改ざん、鍵の変更、または暗号文でないデータが格納されていたことを示す。
	ErrInvalidToken = errors.New("invalid token")

	// ErrValueExpired はTTL超過した値を、期限切れを表現できない型へ読み取ろうとした場合のエラー。
	// 期限切れ自体は正常な状態であり、EncryptedString/EncryptedJSONで受ければエラーにはならない。
	ErrValueExpired = errors.New("value expired")

	// ErrFieldNotFound は指定された名前のフィールド設定が存在しない場合のエラー。
	ErrFieldNotFound = errors.New("field not found")

	// ErrRecordNotFound は指定されたレコードが存在しない場合のエラー。
	ErrRecordNotFound = errors.New("record not found")

	// ErrRecordAlreadyExists は同名のレコードが既に存在する場合のエラー。
	ErrRecordAlreadyExists = errors.New("record already exists")

	// ErrInvalidFieldName はフィールド名の形式が不正な場合のエラー。
	ErrInvalidFieldName = errors.New("invalid field name")

	// ErrInvalidRecordName はレコード名の形式が不正な場合のエラー。
	ErrInvalidRecordName = errors.New("invalid record name")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrMigrationFileNotFound はマイグレーションファイルが見つからない場合のエラー。
	ErrMigrationFileNotFound = errors.New("migration file not found")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)

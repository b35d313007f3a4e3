package domain

import "time"

// MigrationStatus はマイグレーションの適用状態を表す
type MigrationStatus string

const (
	MigrationStatusPending MigrationStatus = "pending"
	MigrationStatusApplied MigrationStatus = "applied"
)

// Migration はデータベースマイグレーションを表すドメインモデル
type Migration struct {
	Version   string          // マイグレーションバージョン（例: "001", "002"）
	Name      string          // マイグレーション名（ファイル名から抽出）
	AppliedAt *time.Time      // 適用日時（未適用の場合はnil）
	FilePath  string          // マイグレーションファイルのパス
	Status    MigrationStatus // 適用状態
}

// ColumnConversion は平文カラムと暗号化カラム間のコピー変換の結果を表す。
// 暗号化の有効化・無効化は2段階のデータ移行として行われ、本型はその実行サマリとなる。
type ColumnConversion struct {
	Table     string
	Column    string
	FieldName string
	Converted int // 変換に成功した行数
	Skipped   int // 変換済みなどの理由でスキップした行数
	Failed    int // 変換に失敗した行数（他の行には影響しない）
}

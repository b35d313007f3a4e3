package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"field-encryption-service/internal/domain"

	"gorm.io/gorm"
)

// MigrationRepository はマイグレーション履歴を管理するリポジトリのインターフェース。
type MigrationRepository interface {
	EnsureSchema(ctx context.Context) error
	FindAllApplied(ctx context.Context) ([]*domain.Migration, error)
	RecordMigration(ctx context.Context, version string) error
	IsMigrationApplied(ctx context.Context, version string) (bool, error)
}

// MigrationService はスキーママイグレーションと既存カラムの暗号化変換を提供する。
type MigrationService struct {
	repo          MigrationRepository
	db            *gorm.DB
	registry      FieldRegistry
	migrationsDir string
}

// NewMigrationService は新しいMigrationServiceを生成する。
func NewMigrationService(repo MigrationRepository, db *gorm.DB, registry FieldRegistry, migrationsDir string) *MigrationService {
	return &MigrationService{
		repo:          repo,
		db:            db,
		registry:      registry,
		migrationsDir: migrationsDir,
	}
}

// scanMigrationFiles はmigrationsディレクトリから.sqlファイルをスキャンする。
func (s *MigrationService) scanMigrationFiles(ctx context.Context) ([]*domain.Migration, error) {
	entries, err := os.ReadDir(s.migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []*domain.Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, name, err := parseMigrationFileName(entry.Name())
		if err != nil {
			return nil, err
		}

		filePath := filepath.Join(s.migrationsDir, entry.Name())
		migrations = append(migrations, &domain.Migration{
			Version:  version,
			Name:     name,
			FilePath: filePath,
			Status:   domain.MigrationStatusPending,
		})
	}

	// バージョン順にソート
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// parseMigrationFileName はファイル名からバージョンと名前を抽出する。
// ファイル名のフォーマット: {version}_{name}.sql (例: 001_create_protected_records.sql)
func parseMigrationFileName(filename string) (version, name string, err error) {
	// .sql拡張子を除去
	nameWithoutExt := strings.TrimSuffix(filename, ".sql")

	// アンダースコアで分割
	parts := strings.SplitN(nameWithoutExt, "_", 2)
	if len(parts) < 2 {
		return "", "", fmt.Errorf("%w: %s (expected format: {version}_{name}.sql)", domain.ErrInvalidMigrationFile, filename)
	}

	version = parts[0]
	name = parts[1]

	return version, name, nil
}

// ApplyMigrations は未適用マイグレーションを番号順に実行する。
func (s *MigrationService) ApplyMigrations(ctx context.Context) (int, error) {
	// 履歴テーブルを用意
	if err := s.repo.EnsureSchema(ctx); err != nil {
		return 0, fmt.Errorf("failed to ensure migration history table: %w", err)
	}

	// 全マイグレーションファイルをスキャン
	allMigrations, err := s.scanMigrationFiles(ctx)
	if err != nil {
		slog.Error("failed to scan migration files",
			"operation", "apply_migrations",
			"error", err,
		)
		return 0, err
	}

	// 未適用マイグレーションをフィルタリング
	var pendingMigrations []*domain.Migration
	for _, migration := range allMigrations {
		applied, err := s.repo.IsMigrationApplied(ctx, migration.Version)
		if err != nil {
			slog.ErrorContext(ctx, "failed to check migration status",
				"operation", "apply_migrations",
				"version", migration.Version,
				"error", err,
			)
			return 0, fmt.Errorf("failed to check migration status: %w", err)
		}
		if !applied {
			pendingMigrations = append(pendingMigrations, migration)
		}
	}

	if len(pendingMigrations) == 0 {
		return 0, nil
	}

	// 各マイグレーションを実行
	appliedCount := 0
	for _, migration := range pendingMigrations {
		if err := s.applyMigration(ctx, migration); err != nil {
			slog.ErrorContext(ctx, "failed to apply migration",
				"operation", "apply_migrations",
				"version", migration.Version,
				"error", err,
			)
			return appliedCount, fmt.Errorf("%w: version %s: %v", domain.ErrMigrationFailed, migration.Version, err)
		}
		appliedCount++
	}

	return appliedCount, nil
}

// applyMigration は単一のマイグレーションを実行する。
func (s *MigrationService) applyMigration(ctx context.Context, migration *domain.Migration) error {
	// SQLファイルを読み込み
	sqlBytes, err := os.ReadFile(migration.FilePath)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read migration file",
			"operation", "apply_migration",
			"version", migration.Version,
			"file_path", migration.FilePath,
			"error", err,
		)
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	// トランザクション内で実行
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// SQL実行
		if err := tx.Exec(string(sqlBytes)).Error; err != nil {
			slog.ErrorContext(ctx, "failed to execute migration SQL",
				"operation", "apply_migration",
				"version", migration.Version,
				"error", err,
			)
			return fmt.Errorf("failed to execute migration SQL: %w", err)
		}

		// 履歴を記録（トランザクション内で実行するため、同じtxを使用）
		model := struct {
			Version string `gorm:"column:version;primaryKey;type:varchar(14)"`
		}{
			Version: migration.Version,
		}
		if err := tx.Table("schema_migrations").Create(&model).Error; err != nil {
			slog.ErrorContext(ctx, "failed to record migration in schema_migrations",
				"operation", "apply_migration",
				"version", migration.Version,
				"error", err,
			)
			return fmt.Errorf("failed to record migration: %w", err)
		}

		return nil
	})
}

// GetMigrationStatus は現在のマイグレーション状況を取得する。
func (s *MigrationService) GetMigrationStatus(ctx context.Context) ([]*domain.Migration, error) {
	// 全マイグレーションファイルをスキャン
	allMigrations, err := s.scanMigrationFiles(ctx)
	if err != nil {
		return nil, err
	}

	// 適用済みマイグレーション履歴を取得
	appliedMigrations, err := s.repo.FindAllApplied(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch applied migrations",
			"operation", "get_migration_status",
			"error", err,
		)
		return nil, fmt.Errorf("failed to fetch applied migrations: %w", err)
	}

	// 適用済みマイグレーションのマップを作成
	appliedMap := make(map[string]*domain.Migration)
	for _, migration := range appliedMigrations {
		appliedMap[migration.Version] = migration
	}

	// ステータスを設定
	for _, migration := range allMigrations {
		if applied, exists := appliedMap[migration.Version]; exists {
			migration.Status = domain.MigrationStatusApplied
			migration.AppliedAt = applied.AppliedAt
		}
	}

	return allMigrations, nil
}

// identifierPattern はテーブル名・カラム名として許可する識別子のパターン。
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// validateIdentifier はSQL識別子を検証する。動的SQLに埋め込むため厳格に制限する。
func validateIdentifier(kind, s string) error {
	if !identifierPattern.MatchString(s) {
		return fmt.Errorf("%w: invalid %s name %q", domain.ErrMigrationFailed, kind, s)
	}
	return nil
}

// EncryptColumn は既存テーブルの平文カラムを行単位で暗号化トークンに変換する。
// 既にトークンになっている行はスキップし、行単位の失敗は他の行に影響しない。
func (s *MigrationService) EncryptColumn(ctx context.Context, table, column, fieldName string) (*domain.ColumnConversion, error) {
	if err := validateIdentifier("table", table); err != nil {
		return nil, err
	}
	if err := validateIdentifier("column", column); err != nil {
		return nil, err
	}

	f, err := s.registry.Resolve(fieldName)
	if err != nil {
		return nil, err
	}

	result := &domain.ColumnConversion{Table: table, Column: column, FieldName: fieldName}

	rows, err := s.fetchColumnRows(ctx, table, column)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		if row.value == nil {
			result.Skipped++
			continue
		}

		// 既にトークンなら再暗号化しない（再実行に対して冪等）
		if _, _, err := f.UnsealStored(*row.value); err == nil {
			result.Skipped++
			continue
		}

		token, err := f.SealStored(*row.value)
		if err != nil {
			slog.ErrorContext(ctx, "failed to encrypt column value",
				"operation", "encrypt_column",
				"table", table,
				"column", column,
				"row_id", row.id,
				"error", err,
			)
			result.Failed++
			continue
		}

		if err := s.updateColumnRow(ctx, table, column, row.id, token); err != nil {
			slog.ErrorContext(ctx, "failed to store encrypted value",
				"operation", "encrypt_column",
				"table", table,
				"column", column,
				"row_id", row.id,
				"error", err,
			)
			result.Failed++
			continue
		}
		result.Converted++
	}

	return result, nil
}

// DecryptColumn は暗号化トークンのカラムを行単位で平文に戻す。
// 復号できない行とTTL超過の行はトークンのまま残る。
func (s *MigrationService) DecryptColumn(ctx context.Context, table, column, fieldName string) (*domain.ColumnConversion, error) {
	if err := validateIdentifier("table", table); err != nil {
		return nil, err
	}
	if err := validateIdentifier("column", column); err != nil {
		return nil, err
	}

	f, err := s.registry.Resolve(fieldName)
	if err != nil {
		return nil, err
	}

	result := &domain.ColumnConversion{Table: table, Column: column, FieldName: fieldName}

	rows, err := s.fetchColumnRows(ctx, table, column)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		if row.value == nil {
			result.Skipped++
			continue
		}

		plain, expired, err := f.UnsealStored(*row.value)
		if err != nil {
			slog.ErrorContext(ctx, "failed to decrypt column value",
				"operation", "decrypt_column",
				"table", table,
				"column", column,
				"row_id", row.id,
				"error", err,
			)
			result.Failed++
			continue
		}
		if expired {
			// 期限切れの平文は復元しない
			result.Skipped++
			continue
		}

		if err := s.updateColumnRow(ctx, table, column, row.id, plain); err != nil {
			slog.ErrorContext(ctx, "failed to store decrypted value",
				"operation", "decrypt_column",
				"table", table,
				"column", column,
				"row_id", row.id,
				"error", err,
			)
			result.Failed++
			continue
		}
		result.Converted++
	}

	return result, nil
}

// columnRow はカラム変換の対象行。
type columnRow struct {
	id    string
	value *string
}

// fetchColumnRows は対象テーブルからidと変換対象カラムを取得する。
func (s *MigrationService) fetchColumnRows(ctx context.Context, table, column string) ([]columnRow, error) {
	sqlRows, err := s.db.WithContext(ctx).
		Table(table).
		Select("id, " + column).
		Order("id").
		Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", table, err)
	}
	defer sqlRows.Close()

	var rows []columnRow
	for sqlRows.Next() {
		var row columnRow
		if err := sqlRows.Scan(&row.id, &row.value); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rows = append(rows, row)
	}
	if err := sqlRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return rows, nil
}

// updateColumnRow は単一行のカラム値を更新する。
func (s *MigrationService) updateColumnRow(ctx context.Context, table, column, id, value string) error {
	return s.db.WithContext(ctx).
		Table(table).
		Where("id = ?", id).
		Update(column, value).Error
}

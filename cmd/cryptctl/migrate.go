package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"field-encryption-service/config"
	"field-encryption-service/internal/domain"
	"field-encryption-service/internal/field"
	"field-encryption-service/internal/infra"
	"field-encryption-service/internal/repository"
	"field-encryption-service/internal/usecase"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database migrations",
	Long:  "Manage schema migrations and column encryption for the field encryption service",
}

// openDB はDATABASE_URLからデータベース接続を開く。
func openDB() (*gorm.DB, *config.Config, error) {
	_ = godotenv.Load()
	cfg := config.Load()

	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	db, err := infra.NewDB(cfg.DatabaseURL, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, cfg, nil
}

// migrationsPath はマイグレーションディレクトリの絶対パスを返す。
func migrationsPath() (string, error) {
	migrationsDir := os.Getenv("MIGRATIONS_DIR")
	if migrationsDir == "" {
		// デフォルト: ./migrations
		migrationsDir = "./migrations"
	}

	absPath, err := filepath.Abs(migrationsDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve migrations directory: %w", err)
	}
	return absPath, nil
}

// newRegistry は設定からフィールド登録簿を構築する。カラム変換コマンドで使う。
func newRegistry(ctx context.Context, cfg *config.Config) (*field.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	secretSource, err := infra.NewSecretSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer secretSource.Close()

	secret, err := secretSource.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	def, err := field.NewEncrypted(field.Text{}, field.Config{
		Secret:     secret,
		Salt:       []byte(cfg.Salt),
		Digest:     cfg.Digest,
		Iterations: cfg.KDFIterations,
		TTL:        cfg.DefaultTTL,
	})
	if err != nil {
		return nil, err
	}
	return field.NewRegistry(def), nil
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Long:  "Apply all pending migrations to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		db, _, err := openDB()
		if err != nil {
			return err
		}

		absPath, err := migrationsPath()
		if err != nil {
			return err
		}

		// MigrationServiceを初期化（スキーマ適用にフィールド設定は不要）
		migrationRepo := repository.NewMigrationRepository(db)
		migrationService := usecase.NewMigrationService(migrationRepo, db, field.NewRegistry(nil), absPath)

		// マイグレーション実行
		appliedCount, err := migrationService.ApplyMigrations(ctx)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		if appliedCount == 0 {
			fmt.Println("No pending migrations.")
		} else {
			fmt.Printf("Applied %d migration(s) successfully.\n", appliedCount)
		}

		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	Long:  "Show the status of all migrations (applied/pending)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		db, _, err := openDB()
		if err != nil {
			return err
		}

		absPath, err := migrationsPath()
		if err != nil {
			return err
		}

		migrationRepo := repository.NewMigrationRepository(db)
		migrationService := usecase.NewMigrationService(migrationRepo, db, field.NewRegistry(nil), absPath)

		// マイグレーションステータスを取得
		migrations, err := migrationService.GetMigrationStatus(ctx)
		if err != nil {
			return fmt.Errorf("failed to get migration status: %w", err)
		}

		// テーブル形式で出力
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
		fmt.Fprintln(w, "-------\t----\t------\t----------")

		for _, migration := range migrations {
			appliedAt := "-"
			if migration.AppliedAt != nil {
				appliedAt = migration.AppliedAt.Format("2006-01-02 15:04:05")
			}

			status := "pending"
			if migration.Status == domain.MigrationStatusApplied {
				status = "applied"
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", migration.Version, migration.Name, status, appliedAt)
		}

		if err := w.Flush(); err != nil {
			return fmt.Errorf("failed to flush output: %w", err)
		}

		return nil
	},
}

// newColumnConversionCmd はカラム変換コマンドを生成する。encryptがtrueなら暗号化、falseなら復号。
func newColumnConversionCmd(encrypt bool) *cobra.Command {
	var table string
	var column string
	var fieldName string

	use := "decrypt-column"
	short := "Convert an encrypted column back to plaintext"
	if encrypt {
		use = "encrypt-column"
		short = "Convert a plaintext column to encrypted tokens"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			db, cfg, err := openDB()
			if err != nil {
				return err
			}

			registry, err := newRegistry(ctx, cfg)
			if err != nil {
				return err
			}

			migrationRepo := repository.NewMigrationRepository(db)
			migrationService := usecase.NewMigrationService(migrationRepo, db, registry, "")

			var result *domain.ColumnConversion
			if encrypt {
				result, err = migrationService.EncryptColumn(ctx, table, column, fieldName)
			} else {
				result, err = migrationService.DecryptColumn(ctx, table, column, fieldName)
			}
			if err != nil {
				return fmt.Errorf("column conversion failed: %w", err)
			}

			fmt.Printf("Converted %d row(s) in %s.%s (skipped: %d, failed: %d)\n",
				result.Converted, result.Table, result.Column, result.Skipped, result.Failed)
			if result.Failed > 0 {
				return fmt.Errorf("%d row(s) could not be converted", result.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&table, "table", "", "Table name (required)")
	cmd.Flags().StringVar(&column, "column", "", "Column name (required)")
	cmd.Flags().StringVar(&fieldName, "field", "", "Field configuration name (required)")
	cmd.MarkFlagRequired("table")
	cmd.MarkFlagRequired("column")
	cmd.MarkFlagRequired("field")
	return cmd
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
	migrateCmd.AddCommand(newColumnConversionCmd(true))
	migrateCmd.AddCommand(newColumnConversionCmd(false))
}

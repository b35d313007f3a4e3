// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"field-encryption-service/config"
	"field-encryption-service/internal/field"
	"field-encryption-service/internal/handler"
	"field-encryption-service/internal/infra"
	"field-encryption-service/internal/repository"
	"field-encryption-service/internal/usecase"
)

// buildRegistry はマスターシークレットからフィールド登録簿を構築する。
// 既定フィールドは無制限のテキストで、種別ごとの標準フィールドを合わせて登録する。
func buildRegistry(secret []byte, cfg *config.Config) (*field.Registry, error) {
	fieldCfg := field.Config{
		Secret:     secret,
		Salt:       []byte(cfg.Salt),
		Digest:     cfg.Digest,
		Iterations: cfg.KDFIterations,
		TTL:        cfg.DefaultTTL,
	}

	def, err := field.NewEncrypted(field.Text{}, fieldCfg)
	if err != nil {
		return nil, err
	}
	registry := field.NewRegistry(def)

	bases := map[string]field.Field{
		"text":     field.Text{},
		"integer":  field.Integer{},
		"float":    field.Float{},
		"boolean":  field.Boolean{},
		"datetime": field.DateTime{},
		"binary":   field.Binary{},
		"json":     field.Structured{},
	}
	for name, base := range bases {
		f, err := field.NewEncrypted(base, fieldCfg)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(name, f); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	// 設定読み込み
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// ログレベル設定
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "DEBUG":
		logLevel = slog.LevelDebug
	case "WARN":
		logLevel = slog.LevelWarn
	case "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg, logLevel)

	// DB初期化
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is not set")
		os.Exit(1)
	}
	db, err := infra.NewDB(cfg.DatabaseURL, cfg)
	if err != nil {
		slog.Error("failed to init database", "error", err)
		os.Exit(1)
	}

	// マスターシークレットを取得
	secretSource, err := infra.NewSecretSource(ctx, cfg)
	if err != nil {
		slog.Error("failed to init secret source", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := secretSource.Close(); closeErr != nil {
			slog.Error("failed to close secret source", "error", closeErr)
		}
	}()
	secret, err := secretSource.Resolve(ctx)
	if err != nil {
		slog.Error("failed to resolve master secret", "error", err)
		os.Exit(1)
	}

	// フィールド登録簿を構築し、gormのシリアライザとして登録
	registry, err := buildRegistry(secret, cfg)
	if err != nil {
		slog.Error("failed to build field registry", "error", err)
		os.Exit(1)
	}
	field.RegisterSerializer(registry)

	// DI
	repo := repository.NewRecordRepository(db)
	service := usecase.NewCipherService(repo, registry)
	h := handler.NewCipherHandler(service)
	router := handler.NewRouter(h, cfg)

	// サーバー起動
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server", "port", cfg.Port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

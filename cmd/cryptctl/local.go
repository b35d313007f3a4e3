package main

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"

	"field-encryption-service/config"
	"field-encryption-service/internal/field"
	"field-encryption-service/internal/infra"
)

// localField は環境変数の暗号化設定からフィールドを構築する。
// APIを経由せずに値を封印・復号するローカルモードで使う。
func localField(ctx context.Context) (*field.Encrypted, error) {
	_ = godotenv.Load()
	cfg := config.Load()
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

	return field.NewEncrypted(field.Text{}, field.Config{
		Secret:     secret,
		Salt:       []byte(cfg.Salt),
		Digest:     cfg.Digest,
		Iterations: cfg.KDFIterations,
		TTL:        cfg.DefaultTTL,
	})
}

// encryptLocal は値をローカルで暗号化してトークンを出力する。
func encryptLocal(fieldName, value string) error {
	f, err := localField(context.Background())
	if err != nil {
		return err
	}

	token, err := f.EncodeStorage(value)
	if err != nil {
		return fmt.Errorf("encrypting value: %w", err)
	}

	if output == "json" {
		fmt.Printf("{\"field\":%q,\"token\":%q}\n", fieldName, token)
	} else {
		fmt.Println(token)
	}
	return nil
}

// decryptLocal はトークンをローカルで復号して平文を出力する。
func decryptLocal(fieldName, token string) error {
	f, err := localField(context.Background())
	if err != nil {
		return err
	}

	plain, expired, err := f.UnsealStored(token)
	if err != nil {
		return fmt.Errorf("decrypting token: %w", err)
	}

	if output == "json" {
		fmt.Printf("{\"field\":%q,\"value\":%q,\"expired\":%t}\n", fieldName, plain, expired)
	} else if expired {
		fmt.Println("<expired>")
	} else {
		fmt.Println(plain)
	}
	return nil
}

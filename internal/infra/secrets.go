package infra

import (
	"context"
	"encoding/base64"
	"fmt"

	kms "cloud.google.com/go/kms/apiv1"
	kmspb "cloud.google.com/go/kms/apiv1/kmspb"

	"field-encryption-service/config"
)

// SecretSource は鍵導出に使うマスターシークレットの取得手段。
type SecretSource interface {
	Resolve(ctx context.Context) ([]byte, error)
	Close() error
}

// EnvSecretSource は設定から渡されたシークレットをそのまま返す。
type EnvSecretSource struct {
	secret []byte
}

// NewEnvSecretSource は新しいEnvSecretSourceを生成する。
func NewEnvSecretSource(secret string) *EnvSecretSource {
	return &EnvSecretSource{secret: []byte(secret)}
}

// Resolve はシークレットを返す。
func (s *EnvSecretSource) Resolve(ctx context.Context) ([]byte, error) {
	if len(s.secret) == 0 {
		return nil, fmt.Errorf("secret is empty")
	}
	return s.secret, nil
}

// Close は何もしない。
func (s *EnvSecretSource) Close() error { return nil }

// KMSSecretSource はCloud KMSでラップされたシークレットを復号して返す。
type KMSSecretSource struct {
	client        *kms.KeyManagementClient
	keyName       string
	wrappedSecret []byte
}

// NewKMSSecretSource はbase64エンコードされたラップ済みシークレットからKMSSecretSourceを生成する。
func NewKMSSecretSource(ctx context.Context, keyName string, wrappedSecret string) (*KMSSecretSource, error) {
	if keyName == "" {
		return nil, fmt.Errorf("KMS key name is required")
	}

	wrapped, err := base64.StdEncoding.DecodeString(wrappedSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding wrapped secret: %w", err)
	}

	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating KMS client: %w", err)
	}

	return &KMSSecretSource{
		client:        client,
		keyName:       keyName,
		wrappedSecret: wrapped,
	}, nil
}

// Resolve はラップ済みシークレットをCloud KMSで復号して返す。
func (s *KMSSecretSource) Resolve(ctx context.Context) ([]byte, error) {
	req := &kmspb.DecryptRequest{
		Name:       s.keyName,
		Ciphertext: s.wrappedSecret,
	}
	resp, err := s.client.Decrypt(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("unwrapping secret: %w", err)
	}
	return resp.Plaintext, nil
}

// Close はKMSクライアントを閉じる。
func (s *KMSSecretSource) Close() error {
	return s.client.Close()
}

// NewSecretSource は設定に応じたシークレット取得手段を選択する。
// ラップ済みシークレットとKMSキー名が揃っていればKMSを使い、
// そうでなければ環境変数のシークレットをそのまま使う。
func NewSecretSource(ctx context.Context, cfg *config.Config) (SecretSource, error) {
	if cfg.WrappedSecret != "" && cfg.KMSKeyName != "" {
		return NewKMSSecretSource(ctx, cfg.KMSKeyName, cfg.WrappedSecret)
	}
	if cfg.Secret != "" {
		return NewEnvSecretSource(cfg.Secret), nil
	}
	return nil, fmt.Errorf("no secret configured: set CRYPTO_SECRET or CRYPTO_WRAPPED_SECRET with KMS_KEY_NAME")
}

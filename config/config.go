// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"
)

// DefaultSalt は鍵導出に使う既定のソルト。
const DefaultSalt = "field-encryption"

// Config はアプリケーション設定を表す。Load以降は変更しない。
type Config struct {
	Port               string
	DatabaseURL        string
	LogLevel           string
	GoogleCloudProject string

	OtelEnabled      bool
	OtelEndpoint     string
	OtelServiceName  string
	OtelSamplingRate float64

	// 暗号化設定
	Secret        string        // マスターシークレット（平文）
	WrappedSecret string        // KMSでラップされたマスターシークレット（Base64）
	KMSKeyName    string        // WrappedSecretの復号に使うKMSキー名
	Salt          string        // 鍵導出ソルト
	Digest        string        // 鍵導出ダイジェストアルゴリズム
	KDFIterations int           // PBKDF2の反復回数
	DefaultTTL    time.Duration // 暗号化フィールドの既定TTL（0は無期限）
}

// Load は環境変数から設定を読み込む。
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
		GoogleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),

		OtelEnabled:      getEnvBool("OTEL_ENABLED", false),
		OtelEndpoint:     getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelServiceName:  getEnv("OTEL_SERVICE_NAME", "field-encryption-service"),
		OtelSamplingRate: getEnvFloat("OTEL_SAMPLING_RATE", 1.0),

		Secret:        os.Getenv("CRYPTO_SECRET"),
		WrappedSecret: os.Getenv("CRYPTO_WRAPPED_SECRET"),
		KMSKeyName:    os.Getenv("KMS_KEY_NAME"),
		Salt:          getEnv("CRYPTO_SALT", DefaultSalt),
		Digest:        getEnv("CRYPTO_DIGEST", "sha256"),
		KDFIterations: getEnvInt("CRYPTO_KDF_ITERATIONS", 30000),
		DefaultTTL:    time.Duration(getEnvInt("CRYPTO_TTL_SECONDS", 0)) * time.Second,
	}
}

// Validate は暗号化設定の整合性を検証する。
// シークレットが未設定、またはラップ済みシークレットの形式が不正な場合はエラーを返す。
func (c *Config) Validate() error {
	if c.Secret == "" && c.WrappedSecret == "" {
		return fmt.Errorf("CRYPTO_SECRET or CRYPTO_WRAPPED_SECRET is required")
	}
	if c.WrappedSecret != "" {
		if c.KMSKeyName == "" {
			return fmt.Errorf("KMS_KEY_NAME is required when CRYPTO_WRAPPED_SECRET is set")
		}
		if _, err := base64.StdEncoding.DecodeString(c.WrappedSecret); err != nil {
			return fmt.Errorf("CRYPTO_WRAPPED_SECRET is not valid base64: %w", err)
		}
	}
	if c.Salt == "" {
		return fmt.Errorf("CRYPTO_SALT must not be empty")
	}
	if c.KDFIterations < 1 {
		return fmt.Errorf("CRYPTO_KDF_ITERATIONS must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

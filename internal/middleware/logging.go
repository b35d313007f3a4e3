// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"time"
)

// AuditLog は監査ログの構造体。平文や鍵素材は決して含めない。
type AuditLog struct {
	Operation string `json:"operation"`
	Record    string `json:"record,omitempty"`
	Field     string `json:"field,omitempty"`
	Result    string `json:"result"`
	Timestamp string `json:"timestamp"`
}

// WriteAuditLog は暗号化操作の監査ログを出力する。
func WriteAuditLog(ctx context.Context, operation string, record string, field string, result string) {
	slog.InfoContext(ctx, "cipher operation completed",
		"operation", operation,
		"record", record,
		"field", field,
		"result", result,
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	)
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"field-encryption-service/config"
)

// NewRouter はルーターを生成する。
func NewRouter(h *CipherHandler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)

	// ヘルスチェック
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// ルート定義
	r.Route("/v1", func(r chi.Router) {
		r.Get("/fields", h.ListFields)
		r.Post("/fields/{field}/encrypt", h.Encrypt)
		r.Post("/fields/{field}/decrypt", h.Decrypt)

		r.Route("/records", func(r chi.Router) {
			r.Post("/", h.CreateRecord)
			r.Get("/", h.ListRecords)
			r.Get("/{name}", h.GetRecord)
			r.Put("/{name}", h.UpdateRecord)
			r.Delete("/{name}", h.DeleteRecord)
		})
	})

	// トレーシング有効時はHTTPスパンを出力する
	if cfg != nil && cfg.OtelEnabled {
		return otelhttp.NewHandler(r, "field-encryption-service",
			otelhttp.WithSpanNameFormatter(func(operation string, req *http.Request) string {
				return req.Method + " " + req.URL.Path
			}),
		)
	}

	return r
}

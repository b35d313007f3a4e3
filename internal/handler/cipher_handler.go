// Package handler はHTTPハンドラを提供する。
package handler

import (
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"

	"field-encryption-service/internal/domain"
	"field-encryption-service/internal/middleware"
	"field-encryption-service/internal/usecase"
	"field-encryption-service/pkg/httputil"
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// CipherHandler はHTTPハンドラを提供する。
type CipherHandler struct {
	service *usecase.CipherService
}

// NewCipherHandler は新しいCipherHandlerを生成する。
func NewCipherHandler(service *usecase.CipherService) *CipherHandler {
	return &CipherHandler{service: service}
}

func validateFieldName(name string) error {
	if name == "" || len(name) > 64 || !nameRegex.MatchString(name) {
		return domain.ErrInvalidFieldName
	}
	return nil
}

func validateRecordName(name string) error {
	if name == "" || len(name) > 128 || !nameRegex.MatchString(name) {
		return domain.ErrInvalidRecordName
	}
	return nil
}

// EncryptRequest は暗号化リクエストの形式。
type EncryptRequest struct {
	Value any `json:"value"`
}

// EncryptResponse は暗号化レスポンスの形式。
type EncryptResponse struct {
	Field string `json:"field"`
	Token string `json:"token"`
}

// DecryptRequest は復号リクエストの形式。
type DecryptRequest struct {
	Token string `json:"token"`
}

// DecryptResponse は復号レスポンスの形式。
type DecryptResponse struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Expired bool   `json:"expired"`
}

// FieldInfoResponse はフィールドメタデータのレスポンス形式。
type FieldInfoResponse struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Digest     string `json:"digest"`
	TTLSeconds int64  `json:"ttl_seconds,omitempty"`
	MaxSize    int    `json:"max_size,omitempty"`
}

// FieldListResponse はフィールド一覧のレスポンス形式。
type FieldListResponse struct {
	Fields []FieldInfoResponse `json:"fields"`
}

// CreateRecordRequest はレコード作成リクエストの形式。
type CreateRecordRequest struct {
	Name  string `json:"name"`
	Field string `json:"field"`
	Value string `json:"value"`
}

// UpdateRecordRequest はレコード更新リクエストの形式。
type UpdateRecordRequest struct {
	Value string `json:"value"`
}

// RecordResponse は保護レコードのレスポンス形式。
type RecordResponse struct {
	Name      string `json:"name"`
	Field     string `json:"field"`
	Value     string `json:"value,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// RecordListResponse はレコード一覧のレスポンス形式。
type RecordListResponse struct {
	Records []RecordResponse `json:"records"`
}

func toRecordResponse(record *domain.ProtectedRecord) RecordResponse {
	resp := RecordResponse{
		Name:   record.Name,
		Field:  record.FieldName,
		Status: string(record.Status),
	}
	// 期限切れレコードでは平文を返さない
	if record.Status != domain.RecordStatusExpired {
		resp.Value = record.Value
	}
	if !record.CreatedAt.IsZero() {
		resp.CreatedAt = record.CreatedAt.Format(time.RFC3339)
	}
	if !record.UpdatedAt.IsZero() {
		resp.UpdatedAt = record.UpdatedAt.Format(time.RFC3339)
	}
	return resp
}

// Encrypt は指定されたフィールド設定で値を暗号化する。
func (h *CipherHandler) Encrypt(w http.ResponseWriter, r *http.Request) {
	fieldName := chi.URLParam(r, "field")
	if err := validateFieldName(fieldName); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_FIELD_NAME", "invalid field name format")
		return
	}

	var req EncryptRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	token, err := h.service.EncryptValue(r.Context(), fieldName, req.Value)
	if err != nil {
		if errors.Is(err, domain.ErrFieldNotFound) {
			middleware.WriteAuditLog(r.Context(), "ENCRYPT", "", fieldName, "FAILED")
			httputil.Error(w, http.StatusNotFound, "FIELD_NOT_FOUND", "field not configured")
			return
		}
		if errors.Is(err, domain.ErrSerialization) {
			middleware.WriteAuditLog(r.Context(), "ENCRYPT", "", fieldName, "FAILED")
			httputil.Error(w, http.StatusBadRequest, "INVALID_VALUE", "value is not serializable for this field")
			return
		}
		middleware.WriteAuditLog(r.Context(), "ENCRYPT", "", fieldName, "FAILED")
		httputil.Error(w, http.StatusBadRequest, "INVALID_VALUE", "value failed field validation")
		return
	}

	middleware.WriteAuditLog(r.Context(), "ENCRYPT", "", fieldName, "SUCCESS")
	httputil.JSON(w, http.StatusOK, EncryptResponse{
		Field: fieldName,
		Token: token,
	})
}

// Decrypt は指定されたフィールド設定でトークンを復号する。
func (h *CipherHandler) Decrypt(w http.ResponseWriter, r *http.Request) {
	fieldName := chi.URLParam(r, "field")
	if err := validateFieldName(fieldName); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_FIELD_NAME", "invalid field name format")
		return
	}

	var req DecryptRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	result, err := h.service.DecryptValue(r.Context(), fieldName, req.Token)
	if err != nil {
		if errors.Is(err, domain.ErrFieldNotFound) {
			middleware.WriteAuditLog(r.Context(), "DECRYPT", "", fieldName, "FAILED")
			httputil.Error(w, http.StatusNotFound, "FIELD_NOT_FOUND", "field not configured")
			return
		}
		if errors.Is(err, domain.ErrInvalidToken) {
			middleware.WriteAuditLog(r.Context(), "DECRYPT", "", fieldName, "FAILED")
			httputil.Error(w, http.StatusUnprocessableEntity, "INVALID_TOKEN", "token failed integrity verification")
			return
		}
		middleware.WriteAuditLog(r.Context(), "DECRYPT", "", fieldName, "FAILED")
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	middleware.WriteAuditLog(r.Context(), "DECRYPT", "", fieldName, "SUCCESS")
	httputil.JSON(w, http.StatusOK, DecryptResponse{
		Field:   fieldName,
		Value:   result.Value,
		Expired: result.Expired,
	})
}

// ListFields は登録済みフィールドの一覧を取得する。
func (h *CipherHandler) ListFields(w http.ResponseWriter, r *http.Request) {
	infos := h.service.ListFields(r.Context())

	response := FieldListResponse{
		Fields: make([]FieldInfoResponse, len(infos)),
	}
	for i, info := range infos {
		response.Fields[i] = FieldInfoResponse{
			Name:       info.Name,
			Kind:       info.Kind,
			Digest:     info.Digest,
			TTLSeconds: int64(info.TTL.Seconds()),
			MaxSize:    info.MaxSize,
		}
	}
	httputil.JSON(w, http.StatusOK, response)
}

// CreateRecord は新しい保護レコードを作成する。
func (h *CipherHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var req CreateRecordRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if err := validateRecordName(req.Name); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_RECORD_NAME", "invalid record name format")
		return
	}
	if err := validateFieldName(req.Field); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_FIELD_NAME", "invalid field name format")
		return
	}

	record, err := h.service.CreateRecord(r.Context(), req.Name, req.Field, req.Value)
	if err != nil {
		if errors.Is(err, domain.ErrRecordAlreadyExists) {
			middleware.WriteAuditLog(r.Context(), "CREATE_RECORD", req.Name, req.Field, "FAILED")
			httputil.Error(w, http.StatusConflict, "RECORD_ALREADY_EXISTS", "record already exists with this name")
			return
		}
		if errors.Is(err, domain.ErrFieldNotFound) {
			middleware.WriteAuditLog(r.Context(), "CREATE_RECORD", req.Name, req.Field, "FAILED")
			httputil.Error(w, http.StatusNotFound, "FIELD_NOT_FOUND", "field not configured")
			return
		}
		if errors.Is(err, domain.ErrSerialization) {
			middleware.WriteAuditLog(r.Context(), "CREATE_RECORD", req.Name, req.Field, "FAILED")
			httputil.Error(w, http.StatusBadRequest, "INVALID_VALUE", "value is not serializable for this field")
			return
		}
		middleware.WriteAuditLog(r.Context(), "CREATE_RECORD", req.Name, req.Field, "FAILED")
		httputil.Error(w, http.StatusBadRequest, "INVALID_VALUE", "value failed field validation")
		return
	}

	middleware.WriteAuditLog(r.Context(), "CREATE_RECORD", record.Name, record.FieldName, "SUCCESS")
	httputil.JSON(w, http.StatusCreated, toRecordResponse(record))
}

// GetRecord は指定された名前の保護レコードを取得する。
func (h *CipherHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := validateRecordName(name); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_RECORD_NAME", "invalid record name format")
		return
	}

	record, err := h.service.GetRecord(r.Context(), name)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			middleware.WriteAuditLog(r.Context(), "GET_RECORD", name, "", "FAILED")
			httputil.Error(w, http.StatusNotFound, "RECORD_NOT_FOUND", "record not found")
			return
		}
		if errors.Is(err, domain.ErrInvalidToken) {
			middleware.WriteAuditLog(r.Context(), "GET_RECORD", name, "", "FAILED")
			httputil.Error(w, http.StatusUnprocessableEntity, "INVALID_TOKEN", "stored value failed integrity verification")
			return
		}
		middleware.WriteAuditLog(r.Context(), "GET_RECORD", name, "", "FAILED")
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	middleware.WriteAuditLog(r.Context(), "GET_RECORD", record.Name, record.FieldName, "SUCCESS")
	httputil.JSON(w, http.StatusOK, toRecordResponse(record))
}

// ListRecords は保護レコードの一覧を取得する。
func (h *CipherHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListRecords(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrInvalidToken) {
			middleware.WriteAuditLog(r.Context(), "LIST_RECORDS", "", "", "FAILED")
			httputil.Error(w, http.StatusUnprocessableEntity, "INVALID_TOKEN", "a stored value failed integrity verification")
			return
		}
		middleware.WriteAuditLog(r.Context(), "LIST_RECORDS", "", "", "FAILED")
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	middleware.WriteAuditLog(r.Context(), "LIST_RECORDS", "", "", "SUCCESS")
	response := RecordListResponse{
		Records: make([]RecordResponse, len(records)),
	}
	for i, record := range records {
		response.Records[i] = toRecordResponse(record)
	}
	httputil.JSON(w, http.StatusOK, response)
}

// UpdateRecord は指定された名前の保護レコードの値を更新する。
func (h *CipherHandler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := validateRecordName(name); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_RECORD_NAME", "invalid record name format")
		return
	}

	var req UpdateRecordRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	record, err := h.service.UpdateRecord(r.Context(), name, req.Value)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			middleware.WriteAuditLog(r.Context(), "UPDATE_RECORD", name, "", "FAILED")
			httputil.Error(w, http.StatusNotFound, "RECORD_NOT_FOUND", "record not found")
			return
		}
		if errors.Is(err, domain.ErrSerialization) {
			middleware.WriteAuditLog(r.Context(), "UPDATE_RECORD", name, "", "FAILED")
			httputil.Error(w, http.StatusBadRequest, "INVALID_VALUE", "value is not serializable for this field")
			return
		}
		middleware.WriteAuditLog(r.Context(), "UPDATE_RECORD", name, "", "FAILED")
		httputil.Error(w, http.StatusBadRequest, "INVALID_VALUE", "value failed field validation")
		return
	}

	middleware.WriteAuditLog(r.Context(), "UPDATE_RECORD", record.Name, record.FieldName, "SUCCESS")
	httputil.JSON(w, http.StatusOK, toRecordResponse(record))
}

// DeleteRecord は指定された名前の保護レコードを削除する。
func (h *CipherHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := validateRecordName(name); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_RECORD_NAME", "invalid record name format")
		return
	}

	if err := h.service.DeleteRecord(r.Context(), name); err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			middleware.WriteAuditLog(r.Context(), "DELETE_RECORD", name, "", "FAILED")
			httputil.Error(w, http.StatusNotFound, "RECORD_NOT_FOUND", "record not found")
			return
		}
		middleware.WriteAuditLog(r.Context(), "DELETE_RECORD", name, "", "FAILED")
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	middleware.WriteAuditLog(r.Context(), "DELETE_RECORD", name, "", "SUCCESS")
	w.WriteHeader(http.StatusNoContent)
}

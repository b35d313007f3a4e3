package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"field-encryption-service/internal/domain"
	"field-encryption-service/internal/field"
	"field-encryption-service/internal/usecase"
)

// mockRecordRepository はテスト用のモックリポジトリ。
type mockRecordRepository struct {
	existsResult   bool
	existsErr      error
	createErr      error
	findByNameFn   func(name string) (*domain.ProtectedRecord, error)
	findAllResult  []*domain.ProtectedRecord
	findAllErr     error
	updateErr      error
	deleteErr      error
	createdRecords []*domain.ProtectedRecord
}

func (m *mockRecordRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	return m.existsResult, m.existsErr
}

func (m *mockRecordRepository) Create(ctx context.Context, record *domain.ProtectedRecord) error {
	if m.createErr != nil {
		return m.createErr
	}
	record.ID = "generated-id"
	record.CreatedAt = time.Now()
	m.createdRecords = append(m.createdRecords, record)
	return nil
}

func (m *mockRecordRepository) FindByName(ctx context.Context, name string) (*domain.ProtectedRecord, error) {
	if m.findByNameFn != nil {
		return m.findByNameFn(name)
	}
	return nil, nil
}

func (m *mockRecordRepository) FindAll(ctx context.Context) ([]*domain.ProtectedRecord, error) {
	return m.findAllResult, m.findAllErr
}

func (m *mockRecordRepository) UpdateValue(ctx context.Context, name string, value string) error {
	return m.updateErr
}

func (m *mockRecordRepository) DeleteByName(ctx context.Context, name string) error {
	return m.deleteErr
}

// newTestRegistry は固定シークレットのフィールド登録簿を作成する。
func newTestRegistry(t *testing.T) *field.Registry {
	t.Helper()
	cfg := field.Config{Secret: []byte("s3cr3t"), Iterations: 1000}

	def, err := field.NewEncrypted(field.Text{}, cfg)
	if err != nil {
		t.Fatalf("failed to build default field: %v", err)
	}
	registry := field.NewRegistry(def)

	short, err := field.NewEncrypted(field.Text{MaxLength: 16}, cfg)
	if err != nil {
		t.Fatalf("failed to build short field: %v", err)
	}
	if err := registry.Register("short_text", short); err != nil {
		t.Fatalf("failed to register field: %v", err)
	}

	return registry
}

func setupHandler(t *testing.T, repo *mockRecordRepository) *CipherHandler {
	t.Helper()
	service := usecase.NewCipherService(repo, newTestRegistry(t))
	return NewCipherHandler(service)
}

// newFieldRequest はフィールド名のパスパラメータ付きリクエストを作成する。
func newFieldRequest(method, target, fieldName, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("field", fieldName)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// newRecordRequest はレコード名のパスパラメータ付きリクエストを作成する。
func newRecordRequest(method, target, name, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("name", name)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestEncrypt_Success(t *testing.T) {
	h := setupHandler(t, &mockRecordRepository{})

	req := newFieldRequest(http.MethodPost, "/v1/fields/short_text/encrypt", "short_text", `{"value":"hello"}`)
	rec := httptest.NewRecorder()
	h.Encrypt(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp EncryptResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Field != "short_text" {
		t.Errorf("want field short_text, got %s", resp.Field)
	}
	if resp.Token == "" || resp.Token == "hello" {
		t.Errorf("token must be ciphertext, got %q", resp.Token)
	}

	// 復号すると元の値に戻る
	req = newFieldRequest(http.MethodPost, "/v1/fields/short_text/decrypt", "short_text", `{"token":"`+resp.Token+`"}`)
	rec = httptest.NewRecorder()
	h.Decrypt(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var decResp DecryptResponse
	json.NewDecoder(rec.Body).Decode(&decResp)
	if decResp.Value != "hello" {
		t.Errorf("want hello, got %v", decResp.Value)
	}
	if decResp.Expired {
		t.Error("token must not be expired")
	}
}

func TestEncrypt_InvalidFieldName(t *testing.T) {
	h := setupHandler(t, &mockRecordRepository{})

	req := newFieldRequest(http.MethodPost, "/v1/fields/bad/encrypt", "bad name!", `{"value":"hello"}`)
	rec := httptest.NewRecorder()
	h.Encrypt(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("want status 400, got %d", rec.Code)
	}
}

func TestEncrypt_ValidationError(t *testing.T) {
	h := setupHandler(t, &mockRecordRepository{})

	req := newFieldRequest(http.MethodPost, "/v1/fields/short_text/encrypt", "short_text", `{"value":"this value exceeds sixteen characters"}`)
	rec := httptest.NewRecorder()
	h.Encrypt(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("want status 400, got %d", rec.Code)
	}
}

func TestEncrypt_InvalidBody(t *testing.T) {
	h := setupHandler(t, &mockRecordRepository{})

	req := newFieldRequest(http.MethodPost, "/v1/fields/short_text/encrypt", "short_text", `{not json`)
	rec := httptest.NewRecorder()
	h.Encrypt(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("want status 400, got %d", rec.Code)
	}
}

func TestDecrypt_InvalidToken(t *testing.T) {
	h := setupHandler(t, &mockRecordRepository{})

	req := newFieldRequest(http.MethodPost, "/v1/fields/short_text/decrypt", "short_text", `{"token":"not-a-token"}`)
	rec := httptest.NewRecorder()
	h.Decrypt(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("want status 422, got %d", rec.Code)
	}

	var resp map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["code"] != "INVALID_TOKEN" {
		t.Errorf("want code INVALID_TOKEN, got %v", resp["code"])
	}
}

func TestListFields(t *testing.T) {
	h := setupHandler(t, &mockRecordRepository{})

	req := httptest.NewRequest(http.MethodGet, "/v1/fields", nil)
	rec := httptest.NewRecorder()
	h.ListFields(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d", rec.Code)
	}

	var resp FieldListResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if len(resp.Fields) != 1 {
		t.Fatalf("want 1 field, got %d", len(resp.Fields))
	}
	if resp.Fields[0].Name != "short_text" || resp.Fields[0].Kind != "text" {
		t.Errorf("unexpected field metadata: %+v", resp.Fields[0])
	}
}

func TestCreateRecord_Success(t *testing.T) {
	repo := &mockRecordRepository{existsResult: false}
	h := setupHandler(t, repo)

	req := httptest.NewRequest(http.MethodPost, "/v1/records", strings.NewReader(`{"name":"api-token","field":"short_text","value":"tok_1"}`))
	rec := httptest.NewRecorder()
	h.CreateRecord(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("want status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp RecordResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Name != "api-token" {
		t.Errorf("want name api-token, got %s", resp.Name)
	}
	if resp.Status != "valid" {
		t.Errorf("want status valid, got %s", resp.Status)
	}
	if len(repo.createdRecords) != 1 {
		t.Errorf("want 1 created record, got %d", len(repo.createdRecords))
	}
}

func TestCreateRecord_AlreadyExists(t *testing.T) {
	repo := &mockRecordRepository{existsResult: true}
	h := setupHandler(t, repo)

	req := httptest.NewRequest(http.MethodPost, "/v1/records", strings.NewReader(`{"name":"api-token","field":"short_text","value":"tok_1"}`))
	rec := httptest.NewRecorder()
	h.CreateRecord(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("want status 409, got %d", rec.Code)
	}
}

func TestCreateRecord_InvalidRecordName(t *testing.T) {
	h := setupHandler(t, &mockRecordRepository{})

	req := httptest.NewRequest(http.MethodPost, "/v1/records", strings.NewReader(`{"name":"bad name!","field":"short_text","value":"v"}`))
	rec := httptest.NewRecorder()
	h.CreateRecord(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("want status 400, got %d", rec.Code)
	}
}

func TestGetRecord_Success(t *testing.T) {
	repo := &mockRecordRepository{
		findByNameFn: func(name string) (*domain.ProtectedRecord, error) {
			return &domain.ProtectedRecord{
				Name:      name,
				FieldName: "short_text",
				Value:     "tok_1",
				Status:    domain.RecordStatusValid,
			}, nil
		},
	}
	h := setupHandler(t, repo)

	req := newRecordRequest(http.MethodGet, "/v1/records/api-token", "api-token", "")
	rec := httptest.NewRecorder()
	h.GetRecord(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d", rec.Code)
	}

	var resp RecordResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Value != "tok_1" {
		t.Errorf("want value tok_1, got %s", resp.Value)
	}
}

func TestGetRecord_ExpiredValueOmitted(t *testing.T) {
	repo := &mockRecordRepository{
		findByNameFn: func(name string) (*domain.ProtectedRecord, error) {
			return &domain.ProtectedRecord{
				Name:      name,
				FieldName: "short_text",
				Value:     "",
				Status:    domain.RecordStatusExpired,
			}, nil
		},
	}
	h := setupHandler(t, repo)

	req := newRecordRequest(http.MethodGet, "/v1/records/api-token", "api-token", "")
	rec := httptest.NewRecorder()
	h.GetRecord(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d", rec.Code)
	}

	var resp map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["status"] != "expired" {
		t.Errorf("want status expired, got %v", resp["status"])
	}
	if _, exists := resp["value"]; exists {
		t.Error("expired record must not expose a value")
	}
}

func TestGetRecord_NotFound(t *testing.T) {
	h := setupHandler(t, &mockRecordRepository{})

	req := newRecordRequest(http.MethodGet, "/v1/records/missing", "missing", "")
	rec := httptest.NewRecorder()
	h.GetRecord(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("want status 404, got %d", rec.Code)
	}
}

func TestUpdateRecord_Success(t *testing.T) {
	repo := &mockRecordRepository{
		findByNameFn: func(name string) (*domain.ProtectedRecord, error) {
			return &domain.ProtectedRecord{Name: name, FieldName: "short_text", Value: "old"}, nil
		},
	}
	h := setupHandler(t, repo)

	req := newRecordRequest(http.MethodPut, "/v1/records/api-token", "api-token", `{"value":"new"}`)
	rec := httptest.NewRecorder()
	h.UpdateRecord(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp RecordResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Value != "new" {
		t.Errorf("want value new, got %s", resp.Value)
	}
}

func TestDeleteRecord_Success(t *testing.T) {
	h := setupHandler(t, &mockRecordRepository{})

	req := newRecordRequest(http.MethodDelete, "/v1/records/api-token", "api-token", "")
	rec := httptest.NewRecorder()
	h.DeleteRecord(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("want status 204, got %d", rec.Code)
	}
}

func TestDeleteRecord_NotFound(t *testing.T) {
	h := setupHandler(t, &mockRecordRepository{deleteErr: domain.ErrRecordNotFound})

	req := newRecordRequest(http.MethodDelete, "/v1/records/missing", "missing", "")
	rec := httptest.NewRecorder()
	h.DeleteRecord(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("want status 404, got %d", rec.Code)
	}
}

func TestRouter_Healthz(t *testing.T) {
	h := setupHandler(t, &mockRecordRepository{})
	router := NewRouter(h, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("want status 200, got %d", rec.Code)
	}
}

func TestRouter_EncryptRoute(t *testing.T) {
	h := setupHandler(t, &mockRecordRepository{})
	router := NewRouter(h, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/fields/short_text/encrypt", strings.NewReader(`{"value":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("want status 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"fmt"

	"field-encryption-service/internal/domain"
	"field-encryption-service/internal/field"
)

// RecordRepository は保護レコードのデータアクセスのインターフェース。
type RecordRepository interface {
	ExistsByName(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, record *domain.ProtectedRecord) error
	FindByName(ctx context.Context, name string) (*domain.ProtectedRecord, error)
	FindAll(ctx context.Context) ([]*domain.ProtectedRecord, error)
	UpdateValue(ctx context.Context, name string, value string) error
	DeleteByName(ctx context.Context, name string) error
}

// FieldRegistry は名前付き暗号化フィールド設定を解決するインターフェース。
type FieldRegistry interface {
	Resolve(name string) (*field.Encrypted, error)
	List() []domain.FieldInfo
}

// CipherService は暗号化フィールドに関するビジネスロジックを提供する。
type CipherService struct {
	repo     RecordRepository
	registry FieldRegistry
}

// NewCipherService は新しいCipherServiceを生成する。
func NewCipherService(repo RecordRepository, registry FieldRegistry) *CipherService {
	return &CipherService{
		repo:     repo,
		registry: registry,
	}
}

// EncryptValue は指定されたフィールド設定で値を暗号化し、トークンを返す。
func (s *CipherService) EncryptValue(ctx context.Context, fieldName string, value any) (string, error) {
	f, err := s.registry.Resolve(fieldName)
	if err != nil {
		return "", err
	}
	if err := f.Validate(value); err != nil {
		return "", fmt.Errorf("validating value: %w", err)
	}

	token, err := f.EncodeStorage(value)
	if err != nil {
		return "", fmt.Errorf("encrypting value: %w", err)
	}
	return token, nil
}

// DecryptValue は指定されたフィールド設定でトークンを復号する。
// TTL超過のトークンはエラーではなくExpired=trueとして返す。
func (s *CipherService) DecryptValue(ctx context.Context, fieldName string, token string) (*domain.DecryptResult, error) {
	f, err := s.registry.Resolve(fieldName)
	if err != nil {
		return nil, err
	}

	value, err := f.DecodeStorage(token)
	if err != nil {
		return nil, fmt.Errorf("decrypting value: %w", err)
	}
	if value == field.Expired {
		return &domain.DecryptResult{Expired: true}, nil
	}
	return &domain.DecryptResult{Value: value}, nil
}

// ListFields は登録済みフィールドのメタデータを取得する。
func (s *CipherService) ListFields(ctx context.Context) []domain.FieldInfo {
	return s.registry.List()
}

// CreateRecord は新しい保護レコードを作成する。
func (s *CipherService) CreateRecord(ctx context.Context, name, fieldName, value string) (*domain.ProtectedRecord, error) {
	f, err := s.registry.Resolve(fieldName)
	if err != nil {
		return nil, err
	}
	if err := f.Validate(value); err != nil {
		return nil, fmt.Errorf("validating value: %w", err)
	}

	// 既存チェック
	exists, err := s.repo.ExistsByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("checking existing record: %w", err)
	}
	if exists {
		return nil, domain.ErrRecordAlreadyExists
	}

	record := &domain.ProtectedRecord{
		Name:      name,
		FieldName: fieldName,
		Value:     value,
		Status:    domain.RecordStatusValid,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("creating record: %w", err)
	}
	return record, nil
}

// GetRecord は指定された名前の保護レコードを取得する。
func (s *CipherService) GetRecord(ctx context.Context, name string) (*domain.ProtectedRecord, error) {
	record, err := s.repo.FindByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("finding record: %w", err)
	}
	if record == nil {
		return nil, domain.ErrRecordNotFound
	}
	return record, nil
}

// ListRecords は全ての保護レコードを取得する。
func (s *CipherService) ListRecords(ctx context.Context) ([]*domain.ProtectedRecord, error) {
	records, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding records: %w", err)
	}
	return records, nil
}

// UpdateRecord は指定された名前の保護レコードの値を更新する。
func (s *CipherService) UpdateRecord(ctx context.Context, name, value string) (*domain.ProtectedRecord, error) {
	record, err := s.repo.FindByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("finding record: %w", err)
	}
	if record == nil {
		return nil, domain.ErrRecordNotFound
	}

	f, err := s.registry.Resolve(record.FieldName)
	if err != nil {
		return nil, err
	}
	if err := f.Validate(value); err != nil {
		return nil, fmt.Errorf("validating value: %w", err)
	}

	if err := s.repo.UpdateValue(ctx, name, value); err != nil {
		return nil, fmt.Errorf("updating record: %w", err)
	}

	record.Value = value
	record.Status = domain.RecordStatusValid
	return record, nil
}

// DeleteRecord は指定された名前の保護レコードを削除する。
func (s *CipherService) DeleteRecord(ctx context.Context, name string) error {
	if err := s.repo.DeleteByName(ctx, name); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	return nil
}

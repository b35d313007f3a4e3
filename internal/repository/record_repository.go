// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"field-encryption-service/internal/domain"
	"field-encryption-service/internal/field"
)

// ProtectedRecordModel はgorm用のモデル定義。
// valueカラムはserializer経由で透過的に暗号化される。
type ProtectedRecordModel struct {
	ID        string                `gorm:"type:char(36);primaryKey"`
	Name      string                `gorm:"type:varchar(128);not null;uniqueIndex:uk_record_name"`
	FieldName string                `gorm:"type:varchar(64);not null;index:idx_field_name"`
	Value     field.EncryptedString `gorm:"type:text;not null;serializer:encrypted"`
	CreatedAt time.Time             `gorm:"type:datetime(6);not null;autoCreateTime"`
	UpdatedAt time.Time             `gorm:"type:datetime(6);not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (ProtectedRecordModel) TableName() string {
	return "protected_records"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *ProtectedRecordModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (m *ProtectedRecordModel) toDomain() *domain.ProtectedRecord {
	status := domain.RecordStatusValid
	if m.Value.Expired {
		status = domain.RecordStatusExpired
	}
	return &domain.ProtectedRecord{
		ID:        m.ID,
		Name:      m.Name,
		FieldName: m.FieldName,
		Value:     m.Value.Plain,
		Status:    status,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// RecordRepository は保護レコードのデータアクセスを提供する。
type RecordRepository struct {
	db *gorm.DB
}

// NewRecordRepository は新しいRecordRepositoryを生成する。
func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// ExistsByName は指定された名前のレコードが存在するか確認する。
func (r *RecordRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&ProtectedRecordModel{}).
		Where("name = ?", name).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count records by name",
			"operation", "exists_by_name",
			"name", name,
			"error", err,
		)
		return false, err
	}
	return count > 0, nil
}

// Create は新しい保護レコードを保存する。値の暗号化はserializerが行う。
func (r *RecordRepository) Create(ctx context.Context, record *domain.ProtectedRecord) error {
	model := &ProtectedRecordModel{
		ID:        record.ID,
		Name:      record.Name,
		FieldName: record.FieldName,
		Value:     field.EncryptedString{Plain: record.Value},
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create record",
			"operation", "create",
			"name", record.Name,
			"error", err,
		)
		return err
	}
	// gormで設定された値をドメインエンティティに反映
	record.ID = model.ID
	record.Status = domain.RecordStatusValid
	record.CreatedAt = model.CreatedAt
	record.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByName は指定された名前のレコードを取得する。
// 存在しない場合は(nil, nil)。トークンが不正な場合は復号エラーがそのまま返る。
func (r *RecordRepository) FindByName(ctx context.Context, name string) (*domain.ProtectedRecord, error) {
	var model ProtectedRecordModel
	err := r.db.WithContext(ctx).
		Where("name = ?", name).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find record",
			"operation", "find_by_name",
			"name", name,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindAll は全レコードを名前順で取得する。
func (r *RecordRepository) FindAll(ctx context.Context) ([]*domain.ProtectedRecord, error) {
	var models []ProtectedRecordModel
	err := r.db.WithContext(ctx).
		Order("name ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find all records",
			"operation", "find_all",
			"error", err,
		)
		return nil, err
	}

	records := make([]*domain.ProtectedRecord, len(models))
	for i, m := range models {
		records[i] = m.toDomain()
	}
	return records, nil
}

// UpdateValue は指定された名前のレコードの値を更新する。
// モデル経由で更新することでvalueカラムのシリアライザが適用される。
func (r *RecordRepository) UpdateValue(ctx context.Context, name string, value string) error {
	result := r.db.WithContext(ctx).
		Model(&ProtectedRecordModel{}).
		Where("name = ?", name).
		Select("value", "updated_at").
		Updates(&ProtectedRecordModel{Value: field.EncryptedString{Plain: value}})
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to update record value",
			"operation", "update_value",
			"name", name,
			"error", result.Error,
		)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

// DeleteByName は指定された名前のレコードを削除する。
func (r *RecordRepository) DeleteByName(ctx context.Context, name string) error {
	result := r.db.WithContext(ctx).
		Where("name = ?", name).
		Delete(&ProtectedRecordModel{})
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to delete record",
			"operation", "delete_by_name",
			"name", name,
			"error", result.Error,
		)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

package field

import (
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"field-encryption-service/internal/domain"
)

type noteModel struct {
	ID    int64           `gorm:"primaryKey"`
	Title string          `gorm:"type:text"`
	Body  EncryptedString `gorm:"type:text;serializer:encrypted"`
	Meta  EncryptedJSON   `gorm:"type:text;serializer:encrypted"`
}

func (noteModel) TableName() string { return "notes" }

// setupSerializerDB はserializerを登録したテスト用インメモリSQLiteを作成する。
func setupSerializerDB(t *testing.T, registry *Registry) *gorm.DB {
	t.Helper()

	RegisterSerializer(registry)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sql := `
		CREATE TABLE notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT,
			body TEXT,
			meta TEXT
		);
	`
	if err := db.Exec(sql).Error; err != nil {
		t.Fatalf("failed to create notes table: %v", err)
	}
	return db
}

func newSerializerRegistry(t *testing.T, ttl time.Duration, now time.Time) (*Registry, *Encrypted, *Encrypted) {
	t.Helper()

	cfg := testConfig()
	cfg.TTL = ttl
	body := newTestEncrypted(t, Text{}, cfg, now)
	meta := newTestEncrypted(t, Structured{}, cfg, now)

	registry := NewRegistry(nil)
	if err := registry.Register("body", body); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := registry.Register("meta", meta); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return registry, body, meta
}

func TestSerializer_TransparentRoundTrip(t *testing.T) {
	now := time.Unix(1000, 0)
	registry, _, _ := newSerializerRegistry(t, 0, now)
	db := setupSerializerDB(t, registry)

	note := noteModel{
		Title: "memo",
		Body:  EncryptedString{Plain: "sensitive text"},
		Meta:  EncryptedJSON{Data: map[string]any{"owner": "alice"}},
	}
	if err := db.Create(&note).Error; err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// カラムには平文が残っていない
	var rawBody string
	if err := db.Raw("SELECT body FROM notes WHERE id = ?", note.ID).Scan(&rawBody).Error; err != nil {
		t.Fatalf("raw select failed: %v", err)
	}
	if rawBody == "" || rawBody == "sensitive text" {
		t.Errorf("column must hold a token, got %q", rawBody)
	}

	var loaded noteModel
	if err := db.First(&loaded, note.ID).Error; err != nil {
		t.Fatalf("First failed: %v", err)
	}
	if loaded.Body.Plain != "sensitive text" || loaded.Body.Expired {
		t.Errorf("body round trip mismatch: %+v", loaded.Body)
	}
	m, ok := loaded.Meta.Data.(map[string]any)
	if !ok || m["owner"] != "alice" {
		t.Errorf("meta round trip mismatch: %+v", loaded.Meta)
	}
}

func TestSerializer_ExpiredFlag(t *testing.T) {
	t0 := time.Unix(1000, 0)
	registry, body, meta := newSerializerRegistry(t, 60*time.Second, t0)
	db := setupSerializerDB(t, registry)

	note := noteModel{
		Body: EncryptedString{Plain: "short lived"},
		Meta: EncryptedJSON{Data: []any{"a"}},
	}
	if err := db.Create(&note).Error; err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// TTLを超過した読み取り
	body.now = func() time.Time { return t0.Add(2 * time.Minute) }
	meta.now = func() time.Time { return t0.Add(2 * time.Minute) }

	var loaded noteModel
	if err := db.First(&loaded, note.ID).Error; err != nil {
		t.Fatalf("First failed: %v", err)
	}
	if !loaded.Body.Expired || loaded.Body.Plain != "" {
		t.Errorf("expected expired body, got %+v", loaded.Body)
	}
	if !loaded.Meta.Expired || loaded.Meta.Data != nil {
		t.Errorf("expected expired meta, got %+v", loaded.Meta)
	}
}

func TestSerializer_TamperedColumnFailsRead(t *testing.T) {
	now := time.Unix(1000, 0)
	registry, _, _ := newSerializerRegistry(t, 0, now)
	db := setupSerializerDB(t, registry)

	note := noteModel{Body: EncryptedString{Plain: "intact"}}
	if err := db.Create(&note).Error; err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := db.Exec("UPDATE notes SET body = ? WHERE id = ?", "tampered-value", note.ID).Error; err != nil {
		t.Fatalf("tamper update failed: %v", err)
	}

	var loaded noteModel
	err := db.First(&loaded, note.ID).Error
	if err == nil {
		t.Fatal("reading a tampered column must fail")
	}
	if !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSerializer_UnconfiguredColumn(t *testing.T) {
	// 既定フィールドなし・名前未登録
	registry := NewRegistry(nil)
	db := setupSerializerDB(t, registry)

	note := noteModel{Body: EncryptedString{Plain: "orphan"}}
	err := db.Create(&note).Error
	if err == nil {
		t.Fatal("writing through an unconfigured column must fail")
	}
	if !errors.Is(err, domain.ErrFieldNotFound) {
		t.Errorf("expected ErrFieldNotFound, got %v", err)
	}
}

// 期限切れをゼロ値と区別できない素の型への読み取りは、
// 期限切れデータを通常データに見せかけず、エラーとして失敗する。
func TestSerializer_ExpiredIntoPlainTypeFailsRead(t *testing.T) {
	t0 := time.Unix(1000, 0)
	registry, body, _ := newSerializerRegistry(t, 60*time.Second, t0)
	db := setupSerializerDB(t, registry)

	type plainNote struct {
		ID   int64  `gorm:"primaryKey"`
		Body string `gorm:"type:text;serializer:encrypted;column:body"`
	}
	if err := db.Table("notes").Create(&plainNote{Body: "short lived"}).Error; err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	body.now = func() time.Time { return t0.Add(2 * time.Minute) }

	var loaded plainNote
	err := db.Table("notes").First(&loaded).Error
	if err == nil {
		t.Fatal("reading an expired value into a plain string must fail")
	}
	if !errors.Is(err, domain.ErrValueExpired) {
		t.Errorf("expected ErrValueExpired, got %v", err)
	}
}

func TestSerializer_DefaultFieldFallback(t *testing.T) {
	now := time.Unix(1000, 0)
	def := newTestEncrypted(t, Text{}, testConfig(), now)
	registry := NewRegistry(def)
	db := setupSerializerDB(t, registry)

	type plainNote struct {
		ID   int64  `gorm:"primaryKey"`
		Body string `gorm:"type:text;serializer:encrypted;column:body"`
	}
	if err := db.Table("notes").Create(&plainNote{Body: "fallback"}).Error; err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var loaded plainNote
	if err := db.Table("notes").First(&loaded).Error; err != nil {
		t.Fatalf("First failed: %v", err)
	}
	if loaded.Body != "fallback" {
		t.Errorf("got %q, want %q", loaded.Body, "fallback")
	}
}

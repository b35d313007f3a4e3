package field

import (
	"fmt"
	"sort"
	"sync"

	"field-encryption-service/internal/domain"
)

// Registry は名前付き暗号化フィールド設定の登録簿。
// マイグレーションツールやAPIがフィールドを名前で参照できるようにする。
// 登録は起動時に行い、以後は読み取りのみを想定する。
type Registry struct {
	mu           sync.RWMutex
	fields       map[string]*Encrypted
	defaultField *Encrypted
}

// NewRegistry は既定フィールドを持つ新しいRegistryを生成する。
// 既定フィールドは、名前で登録されていないカラムの暗号化に使われる。
func NewRegistry(defaultField *Encrypted) *Registry {
	return &Registry{
		fields:       make(map[string]*Encrypted),
		defaultField: defaultField,
	}
}

// Register は名前付きフィールド設定を登録する。重複登録はエラー。
func (r *Registry) Register(name string, f *Encrypted) error {
	if name == "" {
		return fmt.Errorf("%w: empty field name", domain.ErrInvalidFieldName)
	}
	if f == nil {
		return fmt.Errorf("%w: nil field %q", domain.ErrConfiguration, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.fields[name]; exists {
		return fmt.Errorf("%w: field %q already registered", domain.ErrConfiguration, name)
	}
	r.fields[name] = f
	return nil
}

// Get は名前でフィールド設定を取得する。
func (r *Registry) Get(name string) (*Encrypted, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fields[name]
	return f, ok
}

// Resolve は名前でフィールド設定を取得し、未登録なら既定フィールドを返す。
// 既定フィールドも無い場合はdomain.ErrFieldNotFound。
func (r *Registry) Resolve(name string) (*Encrypted, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.fields[name]; ok {
		return f, nil
	}
	if r.defaultField != nil {
		return r.defaultField, nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrFieldNotFound, name)
}

// Default は既定フィールドを返す。
func (r *Registry) Default() *Encrypted {
	return r.defaultField
}

// List は登録済みフィールドのメタデータを名前順で返す。鍵素材は含まれない。
func (r *Registry) List() []domain.FieldInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.fields))
	for name := range r.fields {
		names = append(names, name)
	}
	sort.Strings(names)

	infos := make([]domain.FieldInfo, 0, len(names))
	for _, name := range names {
		f := r.fields[name]
		infos = append(infos, domain.FieldInfo{
			Name:    name,
			Kind:    string(f.Kind()),
			Digest:  f.Digest(),
			TTL:     f.TTL(),
			MaxSize: f.MaxStorageSize(),
		})
	}
	return infos
}

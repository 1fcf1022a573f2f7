package repositories

import (
	"reflect"

	"authapp/internal/credentials"

	"gorm.io/gorm"
)

const passwordPluginName = "authapp:seal_passwords"

// PasswordPlugin is a GORM plugin that seals credentials.Holder values
// before they are inserted or updated: raw passwords are hashed, hashes are
// written as they are. It never re-hashes, so saving a record twice keeps
// its password verifiable.
type PasswordPlugin struct {
	hasher credentials.Hasher
}

// NewPasswordPlugin creates a PasswordPlugin using hasher.
func NewPasswordPlugin(hasher credentials.Hasher) *PasswordPlugin {
	return &PasswordPlugin{hasher: hasher}
}

func (p *PasswordPlugin) Name() string {
	return passwordPluginName
}

// Initialize registers the callbacks; called by db.Use.
func (p *PasswordPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Create().Before("gorm:create").Register(passwordPluginName+":create", p.seal); err != nil {
		return err
	}
	return db.Callback().Update().Before("gorm:update").Register(passwordPluginName+":update", p.seal)
}

func (p *PasswordPlugin) seal(db *gorm.DB) {
	if db.Error != nil || db.Statement.Schema == nil {
		return
	}
	// column updates (UpdateColumn, Updates(map)) only write what they name
	if _, ok := db.Statement.Dest.(map[string]interface{}); ok {
		return
	}

	rv := db.Statement.ReflectValue
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			p.sealValue(db, rv.Index(i))
		}
	case reflect.Struct:
		p.sealValue(db, rv)
	}
}

func (p *PasswordPlugin) sealValue(db *gorm.DB, v reflect.Value) {
	for v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if v.Kind() != reflect.Ptr {
		if !v.CanAddr() {
			return
		}
		v = v.Addr()
	}
	if v.IsNil() {
		return
	}

	holder, ok := v.Interface().(credentials.Holder)
	if !ok {
		return
	}
	if err := credentials.Seal(p.hasher, holder); err != nil {
		_ = db.AddError(err)
	}
}

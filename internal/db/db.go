package db

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/pagecraft/internal/event"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB 是一个全局的数据库连接实例
var DB *gorm.DB

// Models 按迁移顺序列出所有持久化模型。
func Models() []any {
	return []any{
		&User{},
		&Page{},
		&Block{},
		&ArticleCategory{},
		&Article{},
		&Product{},
		&Release{},
		&Form{},
		&FormEntry{},
		&File{},
		&Translation{},
		&SystemSetting{},
	}
}

// Open 打开 sqlite 数据库并执行自动迁移。
// databasePath 为空时将回退到默认值 pagecraft.db。
func Open(databasePath string) (*gorm.DB, error) {
	path := strings.TrimSpace(databasePath)
	if path == "" {
		path = "pagecraft.db"
	}

	if err := ensureParentDir(path); err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

// Init 打开数据库并保存到全局 DB。
func Init(databasePath string) error {
	gdb, err := Open(databasePath)
	if err != nil {
		return err
	}
	DB = gdb
	return nil
}

// Migrate 自动迁移模式，为核心模型创建表，并补齐历史数据。
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(Models()...); err != nil {
		return err
	}

	if err := gdb.Model(&Page{}).
		Where("language = '' OR language IS NULL").
		Update("language", "en").Error; err != nil {
		return err
	}
	if err := gdb.Model(&Translation{}).
		Where("source = '' OR source IS NULL").
		Update("source", TranslationManual).Error; err != nil {
		return err
	}
	return nil
}

// RegisterCallbacks 在 gorm 执行完写入语句后，
// 通过 bus 发布 create/update/delete 生命周期事件。
func RegisterCallbacks(gdb *gorm.DB, bus *event.Bus) error {
	cb := gdb.Callback()
	if err := cb.Create().After("gorm:commit_or_rollback_transaction").
		Register("pagecraft:publish_created", publisher(bus, event.TopicCreated)); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:commit_or_rollback_transaction").
		Register("pagecraft:publish_updated", publisher(bus, event.TopicUpdated)); err != nil {
		return err
	}
	return cb.Delete().After("gorm:commit_or_rollback_transaction").
		Register("pagecraft:publish_deleted", publisher(bus, event.TopicDeleted))
}

func publisher(bus *event.Bus, topic string) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		if tx.Error != nil || tx.Statement.Schema == nil {
			return
		}
		table := tx.Statement.Schema.Table
		ctx := tx.Statement.Context
		ids := primaryKeys(tx)
		if len(ids) == 0 {
			ids = []uint{0}
		}
		for _, id := range ids {
			// 监听器的错误由 bus 记录，不能让写入失败
			_ = bus.Publish(ctx, event.Event{Topic: topic, Table: table, ID: id})
		}
	}
}

func primaryKeys(tx *gorm.DB) []uint {
	field := tx.Statement.Schema.PrioritizedPrimaryField
	if field == nil {
		return nil
	}
	rv := reflect.Indirect(tx.Statement.ReflectValue)
	ctx := tx.Statement.Context

	var ids []uint
	collect := func(v reflect.Value) {
		v = reflect.Indirect(v)
		if v.Kind() != reflect.Struct {
			return
		}
		value, zero := field.ValueOf(ctx, v)
		if zero {
			return
		}
		if id, ok := value.(uint); ok {
			ids = append(ids, id)
		}
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			collect(rv.Index(i))
		}
	case reflect.Struct:
		collect(rv)
	}
	return ids
}

func ensureParentDir(path string) error {
	if strings.HasPrefix(path, "file:") || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.New("database path parent is not a directory")
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}

	return err
}

package db

import "gorm.io/gorm"

// 译文来源。
const (
	TranslationManual  = "manual"
	TranslationMachine = "machine"
)

// Translation 保存一条本地化文本，由 group + key + language 唯一确定。
type Translation struct {
	gorm.Model
	Group    string `gorm:"size:64;not null;uniqueIndex:idx_translation_unique"`
	Key      string `gorm:"size:191;not null;uniqueIndex:idx_translation_unique"`
	Language string `gorm:"size:16;not null;uniqueIndex:idx_translation_unique"`
	Value    string `gorm:"type:text"`
	Source   string `gorm:"size:16;not null;default:manual"`
}

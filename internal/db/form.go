package db

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 表单字段类型。
const (
	FieldText     = "text"
	FieldEmail    = "email"
	FieldTextarea = "textarea"
	FieldNumber   = "number"
	FieldSelect   = "select"
	FieldCheckbox = "checkbox"
)

// FormField 描述表单结构中的一个输入项。
type FormField struct {
	Name      string   `json:"name"`
	Label     string   `json:"label"`
	Type      string   `json:"type"`
	Required  bool     `json:"required"`
	Options   []string `json:"options,omitempty"`
	MaxLength int      `json:"maxLength,omitempty"`
}

// Form 定义一个可提交的表单及其通知配置。
// NotifyEmails 为逗号分隔的收件人列表。
type Form struct {
	gorm.Model
	Handle         string                         `gorm:"size:120;uniqueIndex;not null"`
	Name           string                         `gorm:"not null"`
	Fields         datatypes.JSONSlice[FormField] `gorm:"type:json"`
	NotifyEmails   string
	WebhookURL     string
	SuccessMessage string
	Enabled        bool `gorm:"not null"`
}

// FormEntry 记录一次表单提交。
type FormEntry struct {
	gorm.Model
	FormID     uint              `gorm:"index;not null"`
	Form       Form              `gorm:"constraint:OnDelete:CASCADE"`
	Payload    datatypes.JSONMap `gorm:"type:json"`
	IPAddress  string            `gorm:"size:64"`
	UserAgent  string
	Notified   bool `gorm:"not null;default:false"`
	NotifiedAt *time.Time
	// NotifyingAt 非空表示某个投递者已认领该条目，超时后可被重新认领。
	NotifyingAt *time.Time `gorm:"index"`
}

package db

import "gorm.io/gorm"

// File 描述存储在某个磁盘上的文件元数据。
type File struct {
	gorm.Model
	UUID     string `gorm:"size:36;uniqueIndex;not null"`
	Disk     string `gorm:"size:32;not null"`
	Path     string `gorm:"not null"`
	Filename string `gorm:"not null"`
	MimeType string `gorm:"size:120"`
	Size     int64
	Width    int
	Height   int
}

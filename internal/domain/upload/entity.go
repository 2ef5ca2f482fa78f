package upload

import "time"

// StoredFile is one catalog row in either the files or the media table.
// Name, Path, URL, Size, MimeType and Folder are fixed at upload time; only
// the display fields below them are ever edited.
type StoredFile struct {
	ID           string `gorm:"column:id;primaryKey" json:"id"`
	Name         string `gorm:"column:name" json:"name"`
	OriginalName string `gorm:"column:original_name" json:"originalName"`
	MimeType     string `gorm:"column:mime_type" json:"mimeType"`
	Size         int64  `gorm:"column:size" json:"size"`
	Path         string `gorm:"column:path" json:"path"` // relative to the storage root
	URL          string `gorm:"column:url" json:"url"`
	Folder       string `gorm:"column:folder" json:"folder"`

	TitleEn  string `gorm:"column:title_en" json:"titleEn"`
	TitleAr  string `gorm:"column:title_ar" json:"titleAr"`
	Category string `gorm:"column:category" json:"category"`
	Featured bool   `gorm:"column:featured" json:"featured"`

	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`

	// Table is the catalog table the row lives in.
	Table string `gorm:"-" json:"table"`
}

// TableStats aggregates one catalog table.
type TableStats struct {
	Table string `gorm:"-" json:"table"`
	Files int64  `gorm:"column:files" json:"files"`
	Bytes int64  `gorm:"column:bytes" json:"bytes"`
}

// ListFilter narrows catalog listings. Zero values mean "no filter".
type ListFilter struct {
	Folder string
	Limit  int
}

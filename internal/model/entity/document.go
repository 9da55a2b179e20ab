package entity

// Document is the metadata record for an uploaded file. The payload
// itself lives in object storage under ObjectPath; this row only points
// at it. Soft-deleted documents move to the trash collection and are
// hard-deleted only from there.
type Document struct {
	Meta
	FileName    string `json:"file_name" gorm:"size:256;not null"`
	FileSize    int64  `json:"file_size"`
	ContentType string `json:"content_type" gorm:"size:128"`
	ObjectPath  string `json:"object_path" gorm:"size:512;not null"`
	RelatedType string `json:"related_type" gorm:"size:24;index:idx_documents_related"`
	RelatedID   string `json:"related_id" gorm:"size:40;index:idx_documents_related"`
}

func (Document) TableName() string {
	return "documents"
}

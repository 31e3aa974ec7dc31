package database

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User is an account that designs templates or signs submissions.
type User struct {
	gorm.Model
	Username     string `gorm:"uniqueIndex;size:64"`
	PasswordHash string `gorm:"size:255"`
	Templates    []Template `gorm:"constraint:OnDelete:CASCADE"`
}

// Template is a designed form: a name, an optional description and the
// ordered field descriptor list as JSON.
type Template struct {
	gorm.Model
	Name        string         `gorm:"size:255"`
	Description string         `gorm:"size:1024"`
	Fields      datatypes.JSON // ordered field descriptors, see internal/form
	IsPublic    bool           `gorm:"default:false"`
	UserID      uint           `gorm:"index"`
	User        User           `gorm:"constraint:OnDelete:CASCADE"`
}

// Submission statuses.
const (
	SubmissionPending   = "pending"
	SubmissionRendering = "rendering"
	SubmissionCompleted = "completed"
	SubmissionFailed    = "failed"
)

// Submission is one filled, signed instance of a template.
type Submission struct {
	gorm.Model
	TemplateID   uint           `gorm:"index"`
	Template     Template       `gorm:"constraint:OnDelete:CASCADE"`
	UserID       uint           `gorm:"index"`
	Values       datatypes.JSON // flat fieldId -> value map
	Signatures   datatypes.JSON // fieldId -> data URI map
	Status       string         `gorm:"size:32;default:pending"`
	PdfObjectKey string         `gorm:"size:512"`
	Uploads      []Upload       `gorm:"constraint:OnDelete:CASCADE"`
}

// Upload is one file attached to a photo field of a submission. The
// object lives in the storage bucket; rendering stages it to disk.
type Upload struct {
	gorm.Model
	SubmissionID uint   `gorm:"index"`
	FieldID      string `gorm:"size:64;index"`
	FileName     string `gorm:"size:255"`
	ObjectKey    string `gorm:"size:512"`
	Size         int64
	ContentType  string `gorm:"size:128"`
}

package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidSubmission 表示表单缺少必填字段。
var ErrInvalidSubmission = errors.New("invalid form submission")

// 表单状态，新提交的都是 pending。
const (
	SubmissionPending   = "pending"
	SubmissionContacted = "contacted"
)

// FormSubmission 是报名/联系表单的一次提交。
type FormSubmission struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Type      string    `gorm:"size:32;not null;default:contact" json:"type"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:255;index;not null" json:"email"`
	Phone     string    `gorm:"size:64" json:"phone,omitempty"`
	Program   string    `gorm:"size:255" json:"program,omitempty"`
	Year      string    `gorm:"size:32" json:"year,omitempty"`
	Message   string    `gorm:"type:text" json:"message,omitempty"`
	Status    string    `gorm:"size:16;index;not null" json:"status"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

func (FormSubmission) TableName() string {
	return "form_submissions"
}

// Normalize 去掉首尾空白并补全类型和状态，name 和 email 必填。
func (s *FormSubmission) Normalize() error {
	for _, f := range []*string{&s.Type, &s.Name, &s.Email, &s.Phone, &s.Program, &s.Year, &s.Message} {
		*f = strings.TrimSpace(*f)
	}
	if s.Name == "" || s.Email == "" {
		return fmt.Errorf("%w: name and email are required", ErrInvalidSubmission)
	}
	if !strings.Contains(s.Email, "@") {
		return fmt.Errorf("%w: email is malformed", ErrInvalidSubmission)
	}
	if s.Type == "" {
		s.Type = "contact"
	}
	s.Status = SubmissionPending
	return nil
}

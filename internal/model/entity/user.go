package entity

import "time"

// User is an authenticated actor. Every permanent record carries the
// user's ID as owner; multi-tenant areas additionally scope by company.
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;size:40"`
	CompanyID    string    `json:"company_id" gorm:"size:40;index"`
	Email        string    `json:"email" gorm:"size:128;not null;uniqueIndex"`
	Name         string    `json:"name" gorm:"size:128;not null"`
	PasswordHash string    `json:"-" gorm:"size:100;not null"`
	Status       string    `json:"status" gorm:"size:16;not null;default:active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

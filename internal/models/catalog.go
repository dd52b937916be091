// internal/models/catalog.go
package models

import (
	"github.com/google/uuid"
)

type Author struct {
	BaseModel
	Name  string `json:"name" gorm:"size:255;not null"`
	Email string `json:"email" gorm:"size:255;uniqueIndex"`

	// Relationships
	Books []Book `json:"books,omitempty" gorm:"foreignKey:AuthorID"`
}

type Book struct {
	BaseModel
	AuthorID uuid.UUID `json:"author_id" gorm:"type:uuid;not null;index"`
	ISBN     string    `json:"isbn" gorm:"size:20;not null;uniqueIndex"`
	Title    string    `json:"title" gorm:"size:255;not null"`

	// Relationships
	Author *Author `json:"author,omitempty" gorm:"foreignKey:AuthorID"`
}

type Marketplace struct {
	BaseModel
	Code     string `json:"code" gorm:"size:50;not null;uniqueIndex"`
	Name     string `json:"name" gorm:"size:255;not null"`
	IsActive bool   `json:"is_active" gorm:"default:true"`
}

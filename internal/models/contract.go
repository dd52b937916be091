// internal/models/contract.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Contract struct {
	BaseModel
	BookID            uuid.UUID       `json:"book_id" gorm:"type:uuid;not null;index"`
	FilePath          string          `json:"file_path,omitempty" gorm:"size:500"`
	RoyaltyPercentage decimal.Decimal `json:"royalty_percentage" gorm:"type:decimal(5,2);not null"`
	StartDate         time.Time       `json:"start_date" gorm:"type:date;not null"`
	EndDate           time.Time       `json:"end_date" gorm:"type:date;not null"`
	Status            ContractStatus  `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	SubmittedBy       *uuid.UUID      `json:"submitted_by" gorm:"type:uuid"`
	ApprovedBy        *uuid.UUID      `json:"approved_by" gorm:"type:uuid"`
	ApprovedAt        *time.Time      `json:"approved_at"`
	RejectedBy        *uuid.UUID      `json:"rejected_by" gorm:"type:uuid"`
	RejectedAt        *time.Time      `json:"rejected_at"`
	RejectionReason   string          `json:"rejection_reason,omitempty" gorm:"type:text"`

	// Relationships
	Book *Book `json:"book,omitempty" gorm:"foreignKey:BookID"`
}

// Overlaps reports whether both validity windows share at least one day.
func (c *Contract) Overlaps(start, end time.Time) bool {
	return !Date(c.StartDate).After(Date(end)) && !Date(c.EndDate).Before(Date(start))
}

// Covers reports whether the contract is in force on any day of the period.
func (c *Contract) Covers(p Period) bool {
	return c.Overlaps(p.Start(), p.End())
}

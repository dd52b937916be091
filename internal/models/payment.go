// internal/models/payment.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Payment struct {
	BaseModel
	RoyaltyCalculationID uuid.UUID       `json:"royalty_calculation_id" gorm:"type:uuid;not null;uniqueIndex"`
	InvoiceNumber        string          `json:"invoice_number" gorm:"size:50;not null;uniqueIndex"`
	Amount               decimal.Decimal `json:"amount" gorm:"type:decimal(15,2);not null"`
	Status               PaymentStatus   `json:"status" gorm:"type:varchar(20);default:'unpaid';index"`
	InvoicePath          string          `json:"invoice_path" gorm:"size:500"`
	PaymentReference     string          `json:"payment_reference,omitempty" gorm:"size:255"`
	PaidAt               *time.Time      `json:"paid_at"`
	PaidBy               *uuid.UUID      `json:"paid_by" gorm:"type:uuid"`
	GeneratedBy          *uuid.UUID      `json:"generated_by" gorm:"type:uuid"`

	// Relationships
	RoyaltyCalculation *RoyaltyCalculation `json:"royalty_calculation,omitempty" gorm:"foreignKey:RoyaltyCalculationID"`
}

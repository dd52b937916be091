// internal/models/royalty.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RoyaltyCalculation struct {
	BaseModel
	PeriodMonth  Period          `json:"period_month" gorm:"type:varchar(7);not null;uniqueIndex:idx_royalty_period_author"`
	AuthorID     uuid.UUID       `json:"author_id" gorm:"type:uuid;not null;uniqueIndex:idx_royalty_period_author"`
	TotalAmount  decimal.Decimal `json:"total_amount" gorm:"type:decimal(15,2);not null;default:0"`
	Status       RoyaltyStatus   `json:"status" gorm:"type:varchar(20);default:'draft';index"`
	CalculatedBy *uuid.UUID      `json:"calculated_by" gorm:"type:uuid"`
	CalculatedAt *time.Time      `json:"calculated_at"`
	FinalizedBy  *uuid.UUID      `json:"finalized_by" gorm:"type:uuid"`
	FinalizedAt  *time.Time      `json:"finalized_at"`
	PaidAt       *time.Time      `json:"paid_at"`

	// Relationships
	Author  *Author       `json:"author,omitempty" gorm:"foreignKey:AuthorID"`
	Items   []RoyaltyItem `json:"items,omitempty" gorm:"foreignKey:RoyaltyCalculationID"`
	Payment *Payment      `json:"payment,omitempty" gorm:"foreignKey:RoyaltyCalculationID"`
}

type RoyaltyItem struct {
	BaseModel
	RoyaltyCalculationID uuid.UUID       `json:"royalty_calculation_id" gorm:"type:uuid;not null;index"`
	SaleID               uuid.UUID       `json:"sale_id" gorm:"type:uuid;not null;index"`
	ContractID           uuid.UUID       `json:"contract_id" gorm:"type:uuid;not null"`
	Quantity             int             `json:"quantity" gorm:"not null"`
	NetPrice             decimal.Decimal `json:"net_price" gorm:"type:decimal(15,2);not null"`
	RoyaltyPercentage    decimal.Decimal `json:"royalty_percentage" gorm:"type:decimal(5,2);not null"`
	Amount               decimal.Decimal `json:"amount" gorm:"type:decimal(15,2);not null"`

	// Relationships
	Sale *Sale `json:"sale,omitempty" gorm:"foreignKey:SaleID"`
}

type RoyaltyCorrection struct {
	BaseModel
	RoyaltyCalculationID uuid.UUID       `json:"royalty_calculation_id" gorm:"type:uuid;not null;index"`
	RoyaltyItemID        uuid.UUID       `json:"royalty_item_id" gorm:"type:uuid;not null"`
	OldAmount            decimal.Decimal `json:"old_amount" gorm:"type:decimal(15,2);not null"`
	NewAmount            decimal.Decimal `json:"new_amount" gorm:"type:decimal(15,2);not null"`
	Reason               string          `json:"reason" gorm:"type:text;not null"`
	CorrectedBy          *uuid.UUID      `json:"corrected_by" gorm:"type:uuid"`
	Snapshot             JSONB           `json:"snapshot,omitempty" gorm:"type:jsonb"`
}

// RoyaltyAmount computes quantity x netPrice x pct / 100 rounded to cents.
func RoyaltyAmount(quantity int, netPrice, pct decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(int64(quantity)).
		Mul(netPrice).
		Mul(pct).
		Div(decimal.NewFromInt(100)).
		Round(2)
}

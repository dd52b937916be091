// internal/models/sale.go
package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Sale struct {
	BaseModel
	MarketplaceID uuid.UUID       `json:"marketplace_id" gorm:"type:uuid;not null;uniqueIndex:idx_sales_marketplace_transaction"`
	TransactionID string          `json:"transaction_id" gorm:"size:100;not null;uniqueIndex:idx_sales_marketplace_transaction"`
	BookID        uuid.UUID       `json:"book_id" gorm:"type:uuid;not null;index"`
	SalesImportID *uuid.UUID      `json:"sales_import_id" gorm:"type:uuid;index"`
	PeriodMonth   Period          `json:"period_month" gorm:"type:varchar(7);not null;index"`
	Quantity      int             `json:"quantity" gorm:"not null"`
	NetPrice      decimal.Decimal `json:"net_price" gorm:"type:decimal(15,2);not null"`
	Status        SaleStatus      `json:"status" gorm:"type:varchar(20);not null;index"`

	// Relationships
	Book        *Book        `json:"book,omitempty" gorm:"foreignKey:BookID"`
	Marketplace *Marketplace `json:"marketplace,omitempty" gorm:"foreignKey:MarketplaceID"`
}

type SalesImport struct {
	BaseModel
	FileName        string       `json:"file_name" gorm:"size:255;not null"`
	PeriodMonth     Period       `json:"period_month" gorm:"type:varchar(7);not null;index"`
	MarketplaceID   uuid.UUID    `json:"marketplace_id" gorm:"type:uuid;not null;index"`
	TotalRows       int          `json:"total_rows" gorm:"default:0"`
	ImportedRows    int          `json:"imported_rows" gorm:"default:0"`
	FailedRows      int          `json:"failed_rows" gorm:"default:0"`
	Status          ImportStatus `json:"status" gorm:"type:varchar(20);default:'processing';index"`
	ErrorReportPath string       `json:"error_report_path,omitempty" gorm:"size:500"`
	ImportedBy      *uuid.UUID   `json:"imported_by" gorm:"type:uuid"`

	// Relationships
	Marketplace *Marketplace `json:"marketplace,omitempty" gorm:"foreignKey:MarketplaceID"`
}

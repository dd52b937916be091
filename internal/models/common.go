// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// Actor is the already-resolved principal performing a mutation.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

func (a Actor) IsZero() bool {
	return a.ID == uuid.Nil
}

// Enums

type ContractStatus string

const (
	ContractStatusPending  ContractStatus = "pending"
	ContractStatusApproved ContractStatus = "approved"
	ContractStatusRejected ContractStatus = "rejected"
	ContractStatusExpired  ContractStatus = "expired"
)

var contractTransitions = map[ContractStatus][]ContractStatus{
	ContractStatusPending:  {ContractStatusApproved, ContractStatusRejected},
	ContractStatusRejected: {ContractStatusApproved, ContractStatusRejected},
	ContractStatusApproved: {ContractStatusRejected, ContractStatusExpired},
}

func (s ContractStatus) Valid() bool {
	switch s {
	case ContractStatusPending, ContractStatusApproved, ContractStatusRejected, ContractStatusExpired:
		return true
	}
	return false
}

func (s ContractStatus) CanTransitionTo(next ContractStatus) bool {
	return allowed(contractTransitions[s], next)
}

type SaleStatus string

const (
	SaleStatusCompleted SaleStatus = "completed"
	SaleStatusRefunded  SaleStatus = "refunded"
)

func (s SaleStatus) Valid() bool {
	return s == SaleStatusCompleted || s == SaleStatusRefunded
}

type ImportStatus string

const (
	ImportStatusProcessing ImportStatus = "processing"
	ImportStatusCompleted  ImportStatus = "completed"
	ImportStatusFailed     ImportStatus = "failed"
)

var importTransitions = map[ImportStatus][]ImportStatus{
	ImportStatusProcessing: {ImportStatusCompleted, ImportStatusFailed},
}

func (s ImportStatus) CanTransitionTo(next ImportStatus) bool {
	return allowed(importTransitions[s], next)
}

type RoyaltyStatus string

const (
	RoyaltyStatusDraft     RoyaltyStatus = "draft"
	RoyaltyStatusFinalized RoyaltyStatus = "finalized"
	RoyaltyStatusPaid      RoyaltyStatus = "paid"
)

// Draft may be recomputed in place; nothing moves backwards.
var royaltyTransitions = map[RoyaltyStatus][]RoyaltyStatus{
	RoyaltyStatusDraft:     {RoyaltyStatusDraft, RoyaltyStatusFinalized},
	RoyaltyStatusFinalized: {RoyaltyStatusPaid},
}

func (s RoyaltyStatus) Valid() bool {
	switch s {
	case RoyaltyStatusDraft, RoyaltyStatusFinalized, RoyaltyStatusPaid:
		return true
	}
	return false
}

func (s RoyaltyStatus) CanTransitionTo(next RoyaltyStatus) bool {
	return allowed(royaltyTransitions[s], next)
}

// IsClosed reports whether the calculation can no longer be recomputed.
func (s RoyaltyStatus) IsClosed() bool {
	return s == RoyaltyStatusFinalized || s == RoyaltyStatusPaid
}

type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusPaid   PaymentStatus = "paid"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusUnpaid: {PaymentStatusPaid},
}

func (s PaymentStatus) Valid() bool {
	return s == PaymentStatusUnpaid || s == PaymentStatusPaid
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return allowed(paymentTransitions[s], next)
}

func allowed[T comparable](targets []T, next T) bool {
	for _, t := range targets {
		if t == next {
			return true
		}
	}
	return false
}

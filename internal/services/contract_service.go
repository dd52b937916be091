// internal/services/contract_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/javajoker/royalty-backend/internal/database"
	"github.com/javajoker/royalty-backend/internal/models"
	"github.com/javajoker/royalty-backend/internal/utils"
)

const dateLayout = "2006-01-02"

var hundred = decimal.NewFromInt(100)

type ContractService struct {
	db      *gorm.DB
	storage FileStorage
	now     func() time.Time
}

type SubmitContractRequest struct {
	BookID            uuid.UUID        `json:"book_id" validate:"required"`
	StartDate         string           `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate           string           `json:"end_date" validate:"required,datetime=2006-01-02"`
	RoyaltyPercentage *decimal.Decimal `json:"royalty_percentage" validate:"required"`
	Document          []byte           `json:"-"`
	DocumentName      string           `json:"-"`
}

type RejectContractRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

type ContractSearchParams struct {
	utils.PaginationParams
	BookID *uuid.UUID
	Status *models.ContractStatus
}

func NewContractService(db *gorm.DB, storage FileStorage) *ContractService {
	return &ContractService{
		db:      db,
		storage: storage,
		now:     time.Now,
	}
}

func (s *ContractService) Submit(ctx context.Context, actor models.Actor, req *SubmitContractRequest) (contract *models.Contract, err error) {
	ctx, span := startSpan(ctx, "contracts.submit", attribute.String("book.id", req.BookID.String()))
	defer func() { endSpan(span, err) }()

	if err := utils.Validate(req); err != nil {
		return nil, err
	}

	start, _ := time.Parse(dateLayout, req.StartDate)
	end, _ := time.Parse(dateLayout, req.EndDate)
	if !end.After(start) {
		return nil, utils.NewFieldError("end_date", "end_date must be after start_date")
	}
	pct := *req.RoyaltyPercentage
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return nil, utils.NewFieldError("royalty_percentage", "royalty_percentage must be between 0 and 100")
	}

	db := s.db.WithContext(ctx)
	var book models.Book
	if err := db.First(&book, "id = ?", req.BookID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("book")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	contract = &models.Contract{
		BookID:            book.ID,
		RoyaltyPercentage: pct.Round(2),
		StartDate:         models.Date(start),
		EndDate:           models.Date(end),
		Status:            models.ContractStatusPending,
	}
	if !actor.IsZero() {
		contract.SubmittedBy = &actor.ID
	}

	if len(req.Document) > 0 {
		name := fmt.Sprintf("contracts/%s/%s_%s%s", book.ID, time.Now().Format("20060102"),
			uuid.NewString()[:8], strings.ToLower(filepath.Ext(req.DocumentName)))
		locator, err := s.storage.Put(ctx, name, "application/octet-stream", req.Document)
		if err != nil {
			return nil, fmt.Errorf("failed to store contract document: %w", err)
		}
		contract.FilePath = locator
	}

	if err := db.Create(contract).Error; err != nil {
		return nil, fmt.Errorf("failed to create contract: %w", err)
	}
	contract.Book = &book

	logrus.WithFields(logrus.Fields{
		"contract_id": contract.ID,
		"book_id":     book.ID,
		"actor":       actor.ID,
	}).Info("Contract submitted")

	return contract, nil
}

// Approve moves a contract to approved unless another approved contract of the
// same book shares a day with it.
func (s *ContractService) Approve(ctx context.Context, actor models.Actor, contractID uuid.UUID) (contract *models.Contract, err error) {
	ctx, span := startSpan(ctx, "contracts.approve", attribute.String("contract.id", contractID.String()))
	defer func() { endSpan(span, err) }()

	contract = &models.Contract{}
	err = database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if err := loadContract(database.ForUpdate(tx), contractID, contract); err != nil {
			return err
		}
		if contract.Status == models.ContractStatusApproved {
			return nil
		}
		if !contract.Status.CanTransitionTo(models.ContractStatusApproved) {
			return utils.NewConflictError("contract in status %s cannot be approved", contract.Status)
		}

		// Lock the book so concurrent approvals for it serialize.
		var book models.Book
		if err := database.ForUpdate(tx).First(&book, "id = ?", contract.BookID).Error; err != nil {
			return fmt.Errorf("failed to lock book: %w", err)
		}

		var approved []models.Contract
		if err := tx.Where("book_id = ? AND status = ? AND id <> ?",
			contract.BookID, models.ContractStatusApproved, contract.ID).
			Find(&approved).Error; err != nil {
			return fmt.Errorf("failed to load approved contracts: %w", err)
		}
		if other := FindOverlap(contract, approved); other != nil {
			return utils.NewConflictError("contract period overlaps approved contract %s (%s to %s)",
				other.ID, other.StartDate.Format(dateLayout), other.EndDate.Format(dateLayout))
		}

		now := s.now()
		if err := tx.Model(contract).Updates(map[string]interface{}{
			"status":           models.ContractStatusApproved,
			"approved_by":      actorID(actor),
			"approved_at":      now,
			"rejection_reason": "",
		}).Error; err != nil {
			return fmt.Errorf("failed to approve contract: %w", err)
		}
		contract.Status = models.ContractStatusApproved
		contract.ApprovedAt = &now
		contract.ApprovedBy = actorID(actor)
		contract.RejectionReason = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"contract_id": contract.ID,
		"book_id":     contract.BookID,
		"actor":       actor.ID,
	}).Info("Contract approved")

	return contract, nil
}

func (s *ContractService) Reject(ctx context.Context, actor models.Actor, contractID uuid.UUID, req *RejectContractRequest) (contract *models.Contract, err error) {
	ctx, span := startSpan(ctx, "contracts.reject", attribute.String("contract.id", contractID.String()))
	defer func() { endSpan(span, err) }()

	if err := utils.Validate(req); err != nil {
		return nil, err
	}

	contract = &models.Contract{}
	err = database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if err := loadContract(database.ForUpdate(tx), contractID, contract); err != nil {
			return err
		}
		if !contract.Status.CanTransitionTo(models.ContractStatusRejected) {
			return utils.NewConflictError("contract in status %s cannot be rejected", contract.Status)
		}

		now := s.now()
		if err := tx.Model(contract).Updates(map[string]interface{}{
			"status":           models.ContractStatusRejected,
			"rejected_by":      actorID(actor),
			"rejected_at":      now,
			"rejection_reason": strings.TrimSpace(req.Reason),
		}).Error; err != nil {
			return fmt.Errorf("failed to reject contract: %w", err)
		}
		contract.Status = models.ContractStatusRejected
		contract.RejectedAt = &now
		contract.RejectedBy = actorID(actor)
		contract.RejectionReason = strings.TrimSpace(req.Reason)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"contract_id": contract.ID,
		"actor":       actor.ID,
		"reason":      contract.RejectionReason,
	}).Info("Contract rejected")

	return contract, nil
}

// ExpireApproved marks every approved contract that ended before asOf as
// expired and returns how many changed.
func (s *ContractService) ExpireApproved(ctx context.Context, asOf time.Time) (count int64, err error) {
	ctx, span := startSpan(ctx, "contracts.expire", attribute.String("as_of", asOf.Format(dateLayout)))
	defer func() { endSpan(span, err) }()

	cutoff := models.Date(asOf)
	err = database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		var approved []models.Contract
		if err := tx.Select("id", "end_date").
			Where("status = ?", models.ContractStatusApproved).
			Find(&approved).Error; err != nil {
			return fmt.Errorf("failed to load approved contracts: %w", err)
		}

		// Compared as calendar dates so the result does not depend on how the
		// driver renders DATE columns.
		var ids []uuid.UUID
		for _, c := range approved {
			if models.Date(c.EndDate).Before(cutoff) {
				ids = append(ids, c.ID)
			}
		}
		if len(ids) == 0 {
			return nil
		}

		result := tx.Model(&models.Contract{}).
			Where("id IN ? AND status = ?", ids, models.ContractStatusApproved).
			Update("status", models.ContractStatusExpired)
		if result.Error != nil {
			return fmt.Errorf("failed to expire contracts: %w", result.Error)
		}
		count = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	if count > 0 {
		logrus.WithFields(logrus.Fields{"count": count, "as_of": cutoff.Format(dateLayout)}).Info("Contracts expired")
	}
	return count, nil
}

func (s *ContractService) Get(ctx context.Context, contractID uuid.UUID) (*models.Contract, error) {
	var contract models.Contract
	if err := loadContract(s.db.WithContext(ctx).Preload("Book"), contractID, &contract); err != nil {
		return nil, err
	}
	return &contract, nil
}

func (s *ContractService) List(ctx context.Context, params ContractSearchParams) ([]models.Contract, int64, error) {
	var contracts []models.Contract
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Contract{})
	if params.BookID != nil {
		query = query.Where("book_id = ?", *params.BookID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count contracts: %w", err)
	}

	query = utils.ApplySort(query, params.PaginationParams, []string{"created_at", "start_date", "end_date", "status"})
	if err := utils.ApplyPagination(query, params.PaginationParams).Preload("Book").Find(&contracts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list contracts: %w", err)
	}
	return contracts, total, nil
}

// FindOverlap returns the first contract in others whose window intersects c.
func FindOverlap(c *models.Contract, others []models.Contract) *models.Contract {
	for i := range others {
		if others[i].ID == c.ID {
			continue
		}
		if c.Overlaps(others[i].StartDate, others[i].EndDate) {
			return &others[i]
		}
	}
	return nil
}

// CoveringContract picks the contract in force during the period. When more
// than one qualifies the latest start date wins and ambiguous is true.
func CoveringContract(contracts []models.Contract, period models.Period) (chosen *models.Contract, ambiguous bool) {
	var covering []*models.Contract
	for i := range contracts {
		if contracts[i].Covers(period) {
			covering = append(covering, &contracts[i])
		}
	}
	if len(covering) == 0 {
		return nil, false
	}
	sort.SliceStable(covering, func(i, j int) bool {
		return covering[i].StartDate.After(covering[j].StartDate)
	})
	return covering[0], len(covering) > 1
}

func loadContract(db *gorm.DB, id uuid.UUID, contract *models.Contract) error {
	if err := db.First(contract, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NewNotFoundError("contract")
		}
		return fmt.Errorf("database error: %w", err)
	}
	return nil
}

func actorID(actor models.Actor) *uuid.UUID {
	if actor.IsZero() {
		return nil
	}
	id := actor.ID
	return &id
}

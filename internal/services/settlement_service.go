// internal/services/settlement_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/javajoker/royalty-backend/internal/config"
	"github.com/javajoker/royalty-backend/internal/database"
	"github.com/javajoker/royalty-backend/internal/models"
	"github.com/javajoker/royalty-backend/internal/utils"
)

type SettlementService struct {
	db            *gorm.DB
	storage       FileStorage
	renderer      *InvoiceRenderer
	invoicePrefix string
	now           func() time.Time
}

type MarkPaidRequest struct {
	PaymentReference string     `json:"payment_reference" validate:"omitempty,max=255"`
	PaidAt           *time.Time `json:"paid_at"`
}

type PaymentSearchParams struct {
	utils.PaginationParams
	Status *models.PaymentStatus
	Period *models.Period
}

func NewSettlementService(db *gorm.DB, storage FileStorage, renderer *InvoiceRenderer, cfg config.RoyaltyConfig) *SettlementService {
	prefix := cfg.InvoicePrefix
	if prefix == "" {
		prefix = "INV-RYL"
	}
	return &SettlementService{
		db:            db,
		storage:       storage,
		renderer:      renderer,
		invoicePrefix: prefix,
		now:           time.Now,
	}
}

// GenerateInvoice issues the invoice of a finalized calculation. Calling it
// again returns the existing payment with created set to false.
func (s *SettlementService) GenerateInvoice(ctx context.Context, actor models.Actor, calcID uuid.UUID) (payment *models.Payment, created bool, err error) {
	ctx, span := startSpan(ctx, "settlements.generate_invoice", attribute.String("calculation.id", calcID.String()))
	defer func() { endSpan(span, err) }()

	payment = &models.Payment{}
	err = database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		var calc models.RoyaltyCalculation
		if err := loadCalculation(database.ForUpdate(tx), calcID, &calc); err != nil {
			return err
		}

		err := tx.Where("royalty_calculation_id = ?", calc.ID).First(payment).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("database error: %w", err)
		}

		if calc.Status != models.RoyaltyStatusFinalized {
			return utils.NewConflictError("royalty calculation in status %s cannot be invoiced", calc.Status)
		}

		var issued int64
		if err := tx.Model(&models.Payment{}).
			Joins("JOIN royalty_calculations ON royalty_calculations.id = payments.royalty_calculation_id").
			Where("royalty_calculations.period_month = ?", calc.PeriodMonth).
			Count(&issued).Error; err != nil {
			return fmt.Errorf("failed to count invoices: %w", err)
		}
		number := InvoiceNumber(s.invoicePrefix, calc.PeriodMonth, issued+1)

		var author models.Author
		if err := tx.First(&author, "id = ?", calc.AuthorID).Error; err != nil {
			return fmt.Errorf("failed to load author: %w", err)
		}
		var items []models.RoyaltyItem
		if err := tx.Preload("Sale.Book").
			Where("royalty_calculation_id = ?", calc.ID).
			Order("created_at, id").
			Find(&items).Error; err != nil {
			return fmt.Errorf("failed to load royalty items: %w", err)
		}

		now := s.now()
		pdf, err := s.renderer.Render(&InvoiceData{
			Number:   number,
			IssuedAt: now,
			Period:   calc.PeriodMonth,
			Author:   &author,
			Items:    items,
			Total:    calc.TotalAmount,
		})
		if err != nil {
			return err
		}
		locator, err := s.storage.Put(ctx, fmt.Sprintf("invoices/%s/%s.pdf", calc.PeriodMonth.Compact(), number), "application/pdf", pdf)
		if err != nil {
			return fmt.Errorf("failed to store invoice: %w", err)
		}

		payment = &models.Payment{
			RoyaltyCalculationID: calc.ID,
			InvoiceNumber:        number,
			Amount:               calc.TotalAmount,
			Status:               models.PaymentStatusUnpaid,
			InvoicePath:          locator,
			GeneratedBy:          actorID(actor),
		}
		if err := tx.Create(payment).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return utils.NewConflictError("invoice for royalty calculation %s was generated concurrently", calc.ID)
			}
			return fmt.Errorf("failed to create payment: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		logrus.WithFields(logrus.Fields{
			"payment_id":     payment.ID,
			"invoice_number": payment.InvoiceNumber,
			"amount":         payment.Amount.StringFixed(2),
			"actor":          actor.ID,
		}).Info("Invoice generated")
	}
	return payment, created, nil
}

// MarkPaid settles a payment and its calculation together.
func (s *SettlementService) MarkPaid(ctx context.Context, actor models.Actor, paymentID uuid.UUID, req *MarkPaidRequest) (payment *models.Payment, err error) {
	ctx, span := startSpan(ctx, "settlements.mark_paid", attribute.String("payment.id", paymentID.String()))
	defer func() { endSpan(span, err) }()

	if err := utils.Validate(req); err != nil {
		return nil, err
	}

	payment = &models.Payment{}
	err = database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if err := loadPayment(database.ForUpdate(tx), paymentID, payment); err != nil {
			return err
		}
		if payment.Status == models.PaymentStatusPaid {
			return nil
		}
		if !payment.Status.CanTransitionTo(models.PaymentStatusPaid) {
			return utils.NewConflictError("payment in status %s cannot be marked paid", payment.Status)
		}

		var calc models.RoyaltyCalculation
		if err := loadCalculation(database.ForUpdate(tx), payment.RoyaltyCalculationID, &calc); err != nil {
			return err
		}
		if !calc.Status.CanTransitionTo(models.RoyaltyStatusPaid) {
			return utils.NewConflictError("royalty calculation in status %s cannot be marked paid", calc.Status)
		}

		paidAt := s.now()
		if req.PaidAt != nil {
			paidAt = *req.PaidAt
		}
		reference := strings.TrimSpace(req.PaymentReference)

		if err := tx.Model(payment).Updates(map[string]interface{}{
			"status":            models.PaymentStatusPaid,
			"payment_reference": reference,
			"paid_at":           paidAt,
			"paid_by":           actorID(actor),
		}).Error; err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}
		if err := tx.Model(&calc).Updates(map[string]interface{}{
			"status":  models.RoyaltyStatusPaid,
			"paid_at": paidAt,
		}).Error; err != nil {
			return fmt.Errorf("failed to update royalty calculation: %w", err)
		}

		payment.Status = models.PaymentStatusPaid
		payment.PaymentReference = reference
		payment.PaidAt = &paidAt
		payment.PaidBy = actorID(actor)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"reference":  payment.PaymentReference,
		"actor":      actor.ID,
	}).Info("Payment marked paid")

	return payment, nil
}

func (s *SettlementService) Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := loadPayment(s.db.WithContext(ctx).Preload("RoyaltyCalculation.Author"), paymentID, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *SettlementService) List(ctx context.Context, params PaymentSearchParams) ([]models.Payment, int64, error) {
	var payments []models.Payment
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Payment{})
	if params.Status != nil {
		query = query.Where("payments.status = ?", *params.Status)
	}
	if params.Period != nil {
		query = query.Joins("JOIN royalty_calculations ON royalty_calculations.id = payments.royalty_calculation_id").
			Where("royalty_calculations.period_month = ?", *params.Period)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	// Qualified because the period filter joins royalty_calculations.
	params.Sort = "payments." + params.Sort
	query = utils.ApplySort(query, params.PaginationParams,
		[]string{"payments.created_at", "payments.invoice_number", "payments.amount", "payments.paid_at"})
	if err := utils.ApplyPagination(query, params.PaginationParams).
		Preload("RoyaltyCalculation").
		Find(&payments).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, total, nil
}

// InvoiceDocument returns the stored PDF of a payment's invoice.
func (s *SettlementService) InvoiceDocument(ctx context.Context, paymentID uuid.UUID) ([]byte, *models.Payment, error) {
	var payment models.Payment
	if err := loadPayment(s.db.WithContext(ctx), paymentID, &payment); err != nil {
		return nil, nil, err
	}
	if payment.InvoicePath == "" {
		return nil, nil, utils.NewNotFoundError("invoice document")
	}
	data, err := s.storage.Get(ctx, payment.InvoicePath)
	if err != nil {
		return nil, nil, err
	}
	return data, &payment, nil
}

// InvoiceNumber formats <prefix>-<YYYYMM>-<NNNN>.
func InvoiceNumber(prefix string, period models.Period, seq int64) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, period.Compact(), seq)
}

func loadPayment(db *gorm.DB, id uuid.UUID, payment *models.Payment) error {
	if err := db.First(payment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NewNotFoundError("payment")
		}
		return fmt.Errorf("database error: %w", err)
	}
	return nil
}

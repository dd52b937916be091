// internal/services/royalty_service.go
package services

import (
	"context"
	"errors"
	"fmt"
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

const itemBatchSize = 200

type RoyaltyService struct {
	db  *gorm.DB
	now func() time.Time
}

type CalculateRoyaltiesRequest struct {
	Period string `json:"period" validate:"required,period"`
}

type CorrectItemRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"required,max=2000"`
}

type RoyaltySearchParams struct {
	utils.PaginationParams
	Period   *models.Period
	AuthorID *uuid.UUID
	Status   *models.RoyaltyStatus
}

func NewRoyaltyService(db *gorm.DB) *RoyaltyService {
	return &RoyaltyService{
		db:  db,
		now: time.Now,
	}
}

// authorSales is the input of one author's recomputation.
type authorSales struct {
	authorID uuid.UUID
	sales    []models.Sale
}

// CalculateForPeriod (re)computes the draft calculation of every author with
// completed sales in the period. It refuses to touch the period at all when
// one of those authors is already finalized or paid.
func (s *RoyaltyService) CalculateForPeriod(ctx context.Context, actor models.Actor, req *CalculateRoyaltiesRequest) (calcs []models.RoyaltyCalculation, err error) {
	ctx, span := startSpan(ctx, "royalties.calculate", attribute.String("period", req.Period))
	defer func() { endSpan(span, err) }()

	if err := utils.Validate(req); err != nil {
		return nil, err
	}
	period, err := models.ParsePeriod(req.Period)
	if err != nil {
		return nil, utils.NewFieldError("period", err.Error())
	}

	db := s.db.WithContext(ctx)

	var sales []models.Sale
	if err := db.Preload("Book").
		Where("period_month = ? AND status = ?", period, models.SaleStatusCompleted).
		Order("created_at, id").
		Find(&sales).Error; err != nil {
		return nil, fmt.Errorf("failed to load sales: %w", err)
	}

	groups, bookIDs := groupSalesByAuthor(sales)
	if len(groups) == 0 {
		return []models.RoyaltyCalculation{}, nil
	}

	authorIDs := make([]uuid.UUID, 0, len(groups))
	for _, g := range groups {
		authorIDs = append(authorIDs, g.authorID)
	}

	var closed []models.RoyaltyCalculation
	if err := db.Where("period_month = ? AND author_id IN ? AND status IN ?", period, authorIDs,
		[]models.RoyaltyStatus{models.RoyaltyStatusFinalized, models.RoyaltyStatusPaid}).
		Find(&closed).Error; err != nil {
		return nil, fmt.Errorf("failed to check existing calculations: %w", err)
	}
	if len(closed) > 0 {
		return nil, utils.NewConflictError("royalties for %s are already %s for author %s",
			period, closed[0].Status, closed[0].AuthorID)
	}

	var approved []models.Contract
	if err := db.Where("book_id IN ? AND status = ?", bookIDs, models.ContractStatusApproved).
		Find(&approved).Error; err != nil {
		return nil, fmt.Errorf("failed to load contracts: %w", err)
	}
	contractsByBook := make(map[uuid.UUID][]models.Contract)
	for _, c := range approved {
		contractsByBook[c.BookID] = append(contractsByBook[c.BookID], c)
	}

	calcs = make([]models.RoyaltyCalculation, 0, len(groups))
	for _, g := range groups {
		calc, err := s.recomputeAuthor(ctx, actor, period, g, contractsByBook)
		if err != nil {
			return nil, err
		}
		if calc == nil || len(calc.Items) == 0 {
			continue
		}
		calcs = append(calcs, *calc)
	}

	logrus.WithFields(logrus.Fields{
		"period":       period,
		"authors":      len(groups),
		"calculations": len(calcs),
		"actor":        actor.ID,
	}).Info("Royalties calculated")

	return calcs, nil
}

// recomputeAuthor returns nil when the author has no calculation yet and
// none of their sales is covered by a contract.
func (s *RoyaltyService) recomputeAuthor(ctx context.Context, actor models.Actor, period models.Period, g authorSales, contractsByBook map[uuid.UUID][]models.Contract) (*models.RoyaltyCalculation, error) {
	calc := &models.RoyaltyCalculation{}
	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		err := database.ForUpdate(tx).
			Where("period_month = ? AND author_id = ?", period, g.authorID).
			First(calc).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if !anyCovered(period, g.sales, contractsByBook) {
				logrus.WithFields(logrus.Fields{
					"author_id": g.authorID,
					"period":    period,
					"sales":     len(g.sales),
				}).Warn("No sale of the author is covered by a contract, skipping calculation")
				calc = nil
				return nil
			}
			calc = &models.RoyaltyCalculation{
				PeriodMonth: period,
				AuthorID:    g.authorID,
				Status:      models.RoyaltyStatusDraft,
			}
			if err := tx.Create(calc).Error; err != nil {
				if database.IsUniqueViolation(err) {
					return utils.NewConflictError("royalty calculation for author %s in %s is being created concurrently", g.authorID, period)
				}
				return fmt.Errorf("failed to create royalty calculation: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to load royalty calculation: %w", err)
		}

		if !calc.Status.CanTransitionTo(models.RoyaltyStatusDraft) {
			return utils.NewConflictError("royalty calculation for author %s in %s is already %s", g.authorID, period, calc.Status)
		}

		if err := tx.Where("royalty_calculation_id = ?", calc.ID).Delete(&models.RoyaltyItem{}).Error; err != nil {
			return fmt.Errorf("failed to clear royalty items: %w", err)
		}

		items, total := buildItems(calc.ID, period, g.sales, contractsByBook)
		if len(items) > 0 {
			if err := tx.CreateInBatches(items, itemBatchSize).Error; err != nil {
				return fmt.Errorf("failed to save royalty items: %w", err)
			}
		}

		now := s.now()
		if err := tx.Model(calc).Updates(map[string]interface{}{
			"status":        models.RoyaltyStatusDraft,
			"total_amount":  total,
			"calculated_by": actorID(actor),
			"calculated_at": now,
		}).Error; err != nil {
			return fmt.Errorf("failed to update royalty calculation: %w", err)
		}
		calc.Status = models.RoyaltyStatusDraft
		calc.TotalAmount = total
		calc.CalculatedBy = actorID(actor)
		calc.CalculatedAt = &now
		calc.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}
	return calc, nil
}

func anyCovered(period models.Period, sales []models.Sale, contractsByBook map[uuid.UUID][]models.Contract) bool {
	for _, sale := range sales {
		if contract, _ := CoveringContract(contractsByBook[sale.BookID], period); contract != nil {
			return true
		}
	}
	return false
}

// buildItems prices every sale against the contract covering the period.
// Sales of books without such a contract are skipped.
func buildItems(calcID uuid.UUID, period models.Period, sales []models.Sale, contractsByBook map[uuid.UUID][]models.Contract) ([]models.RoyaltyItem, decimal.Decimal) {
	total := decimal.Zero
	items := make([]models.RoyaltyItem, 0, len(sales))

	for _, sale := range sales {
		contract, ambiguous := CoveringContract(contractsByBook[sale.BookID], period)
		if contract == nil {
			logrus.WithFields(logrus.Fields{
				"sale_id": sale.ID,
				"book_id": sale.BookID,
				"period":  period,
			}).Warn("Skipping sale without covering contract")
			continue
		}
		if ambiguous {
			logrus.WithFields(logrus.Fields{
				"sale_id":     sale.ID,
				"book_id":     sale.BookID,
				"contract_id": contract.ID,
				"period":      period,
			}).Warn("Several approved contracts cover the period, using the latest")
		}

		amount := models.RoyaltyAmount(sale.Quantity, sale.NetPrice, contract.RoyaltyPercentage)
		items = append(items, models.RoyaltyItem{
			RoyaltyCalculationID: calcID,
			SaleID:               sale.ID,
			ContractID:           contract.ID,
			Quantity:             sale.Quantity,
			NetPrice:             sale.NetPrice,
			RoyaltyPercentage:    contract.RoyaltyPercentage,
			Amount:               amount,
		})
		total = total.Add(amount)
	}
	return items, total
}

func groupSalesByAuthor(sales []models.Sale) ([]authorSales, []uuid.UUID) {
	byAuthor := make(map[uuid.UUID]*authorSales)
	books := make(map[uuid.UUID]struct{})
	for _, sale := range sales {
		if sale.Book == nil {
			continue
		}
		g, ok := byAuthor[sale.Book.AuthorID]
		if !ok {
			g = &authorSales{authorID: sale.Book.AuthorID}
			byAuthor[sale.Book.AuthorID] = g
		}
		g.sales = append(g.sales, sale)
		books[sale.BookID] = struct{}{}
	}

	groups := make([]authorSales, 0, len(byAuthor))
	for _, g := range byAuthor {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].authorID.String() < groups[j].authorID.String()
	})

	bookIDs := make([]uuid.UUID, 0, len(books))
	for id := range books {
		bookIDs = append(bookIDs, id)
	}
	return groups, bookIDs
}

func (s *RoyaltyService) Finalize(ctx context.Context, actor models.Actor, calcID uuid.UUID) (calc *models.RoyaltyCalculation, err error) {
	ctx, span := startSpan(ctx, "royalties.finalize", attribute.String("calculation.id", calcID.String()))
	defer func() { endSpan(span, err) }()

	calc = &models.RoyaltyCalculation{}
	err = database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if err := loadCalculation(database.ForUpdate(tx), calcID, calc); err != nil {
			return err
		}
		if calc.Status != models.RoyaltyStatusDraft || !calc.Status.CanTransitionTo(models.RoyaltyStatusFinalized) {
			return utils.NewConflictError("royalty calculation in status %s cannot be finalized", calc.Status)
		}

		now := s.now()
		if err := tx.Model(calc).Updates(map[string]interface{}{
			"status":       models.RoyaltyStatusFinalized,
			"finalized_by": actorID(actor),
			"finalized_at": now,
		}).Error; err != nil {
			return fmt.Errorf("failed to finalize royalty calculation: %w", err)
		}
		calc.Status = models.RoyaltyStatusFinalized
		calc.FinalizedBy = actorID(actor)
		calc.FinalizedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"calculation_id": calc.ID,
		"period":         calc.PeriodMonth,
		"total":          calc.TotalAmount.StringFixed(2),
		"actor":          actor.ID,
	}).Info("Royalty calculation finalized")

	return calc, nil
}

// CorrectItem overrides one item amount on a draft calculation and records
// the change.
func (s *RoyaltyService) CorrectItem(ctx context.Context, actor models.Actor, calcID, itemID uuid.UUID, req *CorrectItemRequest) (calc *models.RoyaltyCalculation, err error) {
	ctx, span := startSpan(ctx, "royalties.correct_item",
		attribute.String("calculation.id", calcID.String()),
		attribute.String("item.id", itemID.String()),
	)
	defer func() { endSpan(span, err) }()

	if err := utils.Validate(req); err != nil {
		return nil, err
	}
	if req.Amount.IsNegative() {
		return nil, utils.NewFieldError("amount", "amount must be greater than or equal to 0")
	}
	newAmount := req.Amount.Round(2)

	calc = &models.RoyaltyCalculation{}
	err = database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if err := loadCalculation(database.ForUpdate(tx), calcID, calc); err != nil {
			return err
		}
		if calc.Status != models.RoyaltyStatusDraft {
			return utils.NewConflictError("royalty calculation in status %s cannot be corrected", calc.Status)
		}

		var item models.RoyaltyItem
		if err := tx.Where("id = ? AND royalty_calculation_id = ?", itemID, calc.ID).First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NewNotFoundError("royalty item")
			}
			return fmt.Errorf("database error: %w", err)
		}

		correction := &models.RoyaltyCorrection{
			RoyaltyCalculationID: calc.ID,
			RoyaltyItemID:        item.ID,
			OldAmount:            item.Amount,
			NewAmount:            newAmount,
			Reason:               strings.TrimSpace(req.Reason),
			CorrectedBy:          actorID(actor),
			Snapshot: models.JSONB{
				"sale_id":            item.SaleID.String(),
				"contract_id":        item.ContractID.String(),
				"quantity":           item.Quantity,
				"net_price":          item.NetPrice.StringFixed(2),
				"royalty_percentage": item.RoyaltyPercentage.StringFixed(2),
				"previous_total":     calc.TotalAmount.StringFixed(2),
			},
		}
		if err := tx.Create(correction).Error; err != nil {
			return fmt.Errorf("failed to record correction: %w", err)
		}

		if err := tx.Model(&item).Update("amount", newAmount).Error; err != nil {
			return fmt.Errorf("failed to update royalty item: %w", err)
		}

		var items []models.RoyaltyItem
		if err := tx.Where("royalty_calculation_id = ?", calc.ID).Order("created_at, id").Find(&items).Error; err != nil {
			return fmt.Errorf("failed to load royalty items: %w", err)
		}
		total := decimal.Zero
		for _, it := range items {
			total = total.Add(it.Amount)
		}
		if err := tx.Model(calc).Update("total_amount", total).Error; err != nil {
			return fmt.Errorf("failed to update royalty total: %w", err)
		}
		calc.TotalAmount = total
		calc.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"calculation_id": calc.ID,
		"item_id":        itemID,
		"amount":         newAmount.StringFixed(2),
		"actor":          actor.ID,
	}).Info("Royalty item corrected")

	return calc, nil
}

func (s *RoyaltyService) Get(ctx context.Context, calcID uuid.UUID) (*models.RoyaltyCalculation, error) {
	var calc models.RoyaltyCalculation
	query := s.db.WithContext(ctx).
		Preload("Author").
		Preload("Payment").
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at, id")
		})
	if err := loadCalculation(query, calcID, &calc); err != nil {
		return nil, err
	}
	return &calc, nil
}

// Corrections lists the audit trail of a calculation, newest first.
func (s *RoyaltyService) Corrections(ctx context.Context, calcID uuid.UUID) ([]models.RoyaltyCorrection, error) {
	var corrections []models.RoyaltyCorrection
	if err := s.db.WithContext(ctx).
		Where("royalty_calculation_id = ?", calcID).
		Order("created_at DESC").
		Find(&corrections).Error; err != nil {
		return nil, fmt.Errorf("failed to load corrections: %w", err)
	}
	return corrections, nil
}

func (s *RoyaltyService) List(ctx context.Context, params RoyaltySearchParams) ([]models.RoyaltyCalculation, int64, error) {
	var calcs []models.RoyaltyCalculation
	var total int64

	query := s.db.WithContext(ctx).Model(&models.RoyaltyCalculation{})
	if params.Period != nil {
		query = query.Where("period_month = ?", *params.Period)
	}
	if params.AuthorID != nil {
		query = query.Where("author_id = ?", *params.AuthorID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count royalty calculations: %w", err)
	}

	query = utils.ApplySort(query, params.PaginationParams, []string{"created_at", "period_month", "total_amount", "status"})
	if err := utils.ApplyPagination(query, params.PaginationParams).Preload("Author").Find(&calcs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list royalty calculations: %w", err)
	}
	return calcs, total, nil
}

func loadCalculation(db *gorm.DB, id uuid.UUID, calc *models.RoyaltyCalculation) error {
	if err := db.First(calc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NewNotFoundError("royalty calculation")
		}
		return fmt.Errorf("database error: %w", err)
	}
	return nil
}

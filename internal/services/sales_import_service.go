// internal/services/sales_import_service.go
package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/javajoker/royalty-backend/internal/database"
	"github.com/javajoker/royalty-backend/internal/models"
	"github.com/javajoker/royalty-backend/internal/utils"
)

const (
	ColPeriodMonth     = "period_month"
	ColMarketplaceCode = "marketplace_code"
	ColISBN            = "isbn"
	ColTransactionID   = "transaction_id"
	ColQuantity        = "quantity"
	ColNetPrice        = "net_price"
	ColStatus          = "status"
	ColError           = "error"

	// ReasonBookNotFound is reported for rows whose ISBN matches no book.
	ReasonBookNotFound = "book not found"

	maxErrorPreview = 100
)

// RequiredSalesColumns lists the mandatory CSV header columns in report order.
var RequiredSalesColumns = []string{
	ColPeriodMonth, ColMarketplaceCode, ColISBN, ColTransactionID, ColQuantity, ColNetPrice, ColStatus,
}

type SalesImportService struct {
	db      *gorm.DB
	storage FileStorage
}

type ImportSalesRequest struct {
	Period          string `json:"period" form:"period" validate:"required,period"`
	MarketplaceCode string `json:"marketplace_code" form:"marketplace_code" validate:"required,max=50"`
	FileName        string `json:"file_name" validate:"required"`
}

// RowError is one rejected input row with its original values.
type RowError struct {
	Line   int               `json:"line"`
	Values map[string]string `json:"values"`
	Reason string            `json:"reason"`
}

type ImportResult struct {
	Import          *models.SalesImport `json:"import"`
	TotalRows       int                 `json:"total_rows"`
	ImportedRows    int                 `json:"imported_rows"`
	FailedRows      int                 `json:"failed_rows"`
	ErrorReportPath string              `json:"error_report_path,omitempty"`
	Errors          []RowError          `json:"errors,omitempty"`
}

type ImportSearchParams struct {
	utils.PaginationParams
	Period        *models.Period
	MarketplaceID *uuid.UUID
}

func NewSalesImportService(db *gorm.DB, storage FileStorage) *SalesImportService {
	return &SalesImportService{
		db:      db,
		storage: storage,
	}
}

// bookEligibility caches per-ISBN lookups for the duration of one import.
type bookEligibility struct {
	book     *models.Book
	eligible bool
}

type salesBatch struct {
	importRecord *models.SalesImport
	marketplace  *models.Marketplace
	period       models.Period
	books        map[string]*bookEligibility
	errors       []RowError
}

// Import validates and records every row of a marketplace sales file. Row
// failures are collected; only header or marketplace problems abort.
func (s *SalesImportService) Import(ctx context.Context, actor models.Actor, req *ImportSalesRequest, file io.Reader) (result *ImportResult, err error) {
	ctx, span := startSpan(ctx, "sales.import",
		attribute.String("period", req.Period),
		attribute.String("marketplace.code", req.MarketplaceCode),
	)
	defer func() { endSpan(span, err) }()

	if err := utils.Validate(req); err != nil {
		return nil, err
	}
	period, err := models.ParsePeriod(req.Period)
	if err != nil {
		return nil, utils.NewFieldError("period", err.Error())
	}

	db := s.db.WithContext(ctx)
	var marketplace models.Marketplace
	if err := db.Where("code = ? AND is_active = ?", NormalizeMarketplaceCode(req.MarketplaceCode), true).
		First(&marketplace).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewFieldError("marketplace_code",
				fmt.Sprintf("marketplace %s not found or inactive", req.MarketplaceCode))
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	columns, err := readHeader(reader)
	if err != nil {
		return nil, err
	}

	batch := &salesBatch{
		marketplace: &marketplace,
		period:      period,
		books:       make(map[string]*bookEligibility),
		importRecord: &models.SalesImport{
			FileName:      req.FileName,
			PeriodMonth:   period,
			MarketplaceID: marketplace.ID,
			Status:        models.ImportStatusProcessing,
			ImportedBy:    actorID(actor),
		},
	}
	if err := db.Create(batch.importRecord).Error; err != nil {
		return nil, fmt.Errorf("failed to create sales import: %w", err)
	}

	rec := batch.importRecord
	line := 1
	for {
		record, readErr := reader.Read()
		if readErr == io.EOF {
			break
		}
		line++
		rec.TotalRows++

		var parseErr *csv.ParseError
		if readErr != nil {
			if errors.As(readErr, &parseErr) {
				batch.reject(line, rowValues(columns, record), "malformed row: "+parseErr.Err.Error())
				continue
			}
			s.abort(ctx, rec, readErr)
			return nil, fmt.Errorf("failed to read sales file: %w", readErr)
		}

		values := rowValues(columns, record)
		if reason := s.processRow(ctx, batch, values); reason != "" {
			batch.reject(line, values, reason)
			continue
		}
		rec.ImportedRows++
	}
	rec.FailedRows = len(batch.errors)

	if rec.FailedRows > 0 {
		report, err := buildErrorReport(batch.errors)
		if err != nil {
			s.abort(ctx, rec, err)
			return nil, err
		}
		locator, err := s.storage.Put(ctx, fmt.Sprintf("sales-imports/%s/errors.csv", rec.ID), "text/csv", report)
		if err != nil {
			s.abort(ctx, rec, err)
			return nil, fmt.Errorf("failed to store error report: %w", err)
		}
		rec.ErrorReportPath = locator
	}

	next := models.ImportStatusFailed
	if rec.ImportedRows > 0 {
		next = models.ImportStatusCompleted
	}
	if !rec.Status.CanTransitionTo(next) {
		return nil, utils.NewConflictError("sales import %s already finished", rec.ID)
	}
	rec.Status = next

	if err := db.Model(rec).Updates(map[string]interface{}{
		"total_rows":        rec.TotalRows,
		"imported_rows":     rec.ImportedRows,
		"failed_rows":       rec.FailedRows,
		"status":            rec.Status,
		"error_report_path": rec.ErrorReportPath,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to finalize sales import: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"import_id":   rec.ID,
		"marketplace": marketplace.Code,
		"period":      period,
		"total":       rec.TotalRows,
		"imported":    rec.ImportedRows,
		"failed":      rec.FailedRows,
	}).Info("Sales import processed")

	rec.Marketplace = &marketplace
	result = &ImportResult{
		Import:          rec,
		TotalRows:       rec.TotalRows,
		ImportedRows:    rec.ImportedRows,
		FailedRows:      rec.FailedRows,
		ErrorReportPath: rec.ErrorReportPath,
	}
	if len(batch.errors) > maxErrorPreview {
		result.Errors = batch.errors[:maxErrorPreview]
	} else {
		result.Errors = batch.errors
	}
	return result, nil
}

// processRow validates one row and records it. It returns the rejection
// reason, or "" when the sale was inserted.
func (s *SalesImportService) processRow(ctx context.Context, batch *salesBatch, values map[string]string) string {
	sale, problems := parseSaleRow(values, batch.period, batch.marketplace.Code)
	if len(problems) > 0 {
		return strings.Join(problems, "; ")
	}

	db := s.db.WithContext(ctx)
	var existing int64
	if err := db.Model(&models.Sale{}).
		Where("marketplace_id = ? AND transaction_id = ?", batch.marketplace.ID, sale.TransactionID).
		Count(&existing).Error; err != nil {
		return "database error: " + err.Error()
	}
	if existing > 0 {
		return "transaction_id already imported for this marketplace"
	}

	eligibility, err := s.lookupBook(ctx, batch, values[ColISBN])
	if err != nil {
		return "database error: " + err.Error()
	}
	if eligibility.book == nil {
		return ReasonBookNotFound
	}
	if !eligibility.eligible {
		return fmt.Sprintf("book has no approved contract covering %s", batch.period)
	}

	sale.BookID = eligibility.book.ID
	sale.MarketplaceID = batch.marketplace.ID
	sale.SalesImportID = &batch.importRecord.ID
	if err := db.Create(sale).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return "transaction_id already imported for this marketplace"
		}
		return "failed to save sale: " + err.Error()
	}
	return ""
}

func (s *SalesImportService) lookupBook(ctx context.Context, batch *salesBatch, isbn string) (*bookEligibility, error) {
	key := NormalizeISBN(isbn)
	if cached, ok := batch.books[key]; ok {
		return cached, nil
	}

	db := s.db.WithContext(ctx)
	eligibility := &bookEligibility{}

	var book models.Book
	err := db.Where("isbn = ?", key).First(&book).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		batch.books[key] = eligibility
		return eligibility, nil
	case err != nil:
		return nil, err
	}
	eligibility.book = &book

	var approved []models.Contract
	if err := db.Where("book_id = ? AND status = ?", book.ID, models.ContractStatusApproved).
		Find(&approved).Error; err != nil {
		return nil, err
	}
	chosen, _ := CoveringContract(approved, batch.period)
	eligibility.eligible = chosen != nil

	batch.books[key] = eligibility
	return eligibility, nil
}

func (s *SalesImportService) abort(ctx context.Context, rec *models.SalesImport, cause error) {
	logrus.WithError(cause).WithField("import_id", rec.ID).Error("Sales import aborted")
	if err := s.db.WithContext(ctx).Model(rec).Updates(map[string]interface{}{
		"status":        models.ImportStatusFailed,
		"total_rows":    rec.TotalRows,
		"imported_rows": rec.ImportedRows,
		"failed_rows":   rec.TotalRows - rec.ImportedRows,
	}).Error; err != nil {
		logrus.WithError(err).WithField("import_id", rec.ID).Error("Failed to mark sales import as failed")
	}
}

func (s *SalesImportService) Get(ctx context.Context, importID uuid.UUID) (*models.SalesImport, error) {
	var rec models.SalesImport
	if err := s.db.WithContext(ctx).Preload("Marketplace").First(&rec, "id = ?", importID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("sales import")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &rec, nil
}

func (s *SalesImportService) List(ctx context.Context, params ImportSearchParams) ([]models.SalesImport, int64, error) {
	var imports []models.SalesImport
	var total int64

	query := s.db.WithContext(ctx).Model(&models.SalesImport{})
	if params.Period != nil {
		query = query.Where("period_month = ?", *params.Period)
	}
	if params.MarketplaceID != nil {
		query = query.Where("marketplace_id = ?", *params.MarketplaceID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count sales imports: %w", err)
	}

	query = utils.ApplySort(query, params.PaginationParams, []string{"created_at", "period_month"})
	if err := utils.ApplyPagination(query, params.PaginationParams).Preload("Marketplace").Find(&imports).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list sales imports: %w", err)
	}
	return imports, total, nil
}

// ErrorReport returns the CSV report of rejected rows for an import.
func (s *SalesImportService) ErrorReport(ctx context.Context, importID uuid.UUID) ([]byte, error) {
	rec, err := s.Get(ctx, importID)
	if err != nil {
		return nil, err
	}
	if rec.ErrorReportPath == "" {
		return nil, utils.NewNotFoundError("error report")
	}
	return s.storage.Get(ctx, rec.ErrorReportPath)
}

func (b *salesBatch) reject(line int, values map[string]string, reason string) {
	b.errors = append(b.errors, RowError{Line: line, Values: values, Reason: reason})
}

func readHeader(reader *csv.Reader) (map[string]int, error) {
	header, err := reader.Read()
	if err == io.EOF {
		return nil, utils.NewFieldError("file", "file is empty")
	}
	if err != nil {
		return nil, utils.NewFieldError("file", "unreadable header: "+err.Error())
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if _, seen := columns[name]; !seen {
			columns[name] = i
		}
	}

	var missing []string
	for _, col := range RequiredSalesColumns {
		if _, ok := columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, utils.NewFieldError("file", "missing required columns: "+strings.Join(missing, ", "))
	}
	return columns, nil
}

func rowValues(columns map[string]int, record []string) map[string]string {
	values := make(map[string]string, len(RequiredSalesColumns))
	for _, col := range RequiredSalesColumns {
		if idx := columns[col]; idx < len(record) {
			values[col] = strings.TrimSpace(record[idx])
		} else {
			values[col] = ""
		}
	}
	return values
}

// parseSaleRow performs the stateless per-row checks.
func parseSaleRow(values map[string]string, period models.Period, marketplaceCode string) (*models.Sale, []string) {
	var problems []string

	if values[ColPeriodMonth] != string(period) {
		problems = append(problems, fmt.Sprintf("period_month %q does not match import period %s", values[ColPeriodMonth], period))
	}
	if NormalizeMarketplaceCode(values[ColMarketplaceCode]) != marketplaceCode {
		problems = append(problems, fmt.Sprintf("marketplace_code %q does not match import marketplace %s", values[ColMarketplaceCode], marketplaceCode))
	}
	if values[ColISBN] == "" {
		problems = append(problems, "isbn is required")
	}
	if values[ColTransactionID] == "" {
		problems = append(problems, "transaction_id is required")
	}

	quantity, err := strconv.Atoi(values[ColQuantity])
	if err != nil || quantity <= 0 {
		problems = append(problems, "quantity must be a positive integer")
	}

	netPrice, err := decimal.NewFromString(values[ColNetPrice])
	if err != nil || netPrice.IsNegative() {
		problems = append(problems, "net_price must be a number greater than or equal to 0")
	}

	status := models.SaleStatus(strings.ToLower(values[ColStatus]))
	if !status.Valid() {
		problems = append(problems, "status must be completed or refunded")
	}

	if len(problems) > 0 {
		return nil, problems
	}
	return &models.Sale{
		TransactionID: values[ColTransactionID],
		PeriodMonth:   period,
		Quantity:      quantity,
		NetPrice:      netPrice.Round(2),
		Status:        status,
	}, nil
}

func buildErrorReport(rowErrors []RowError) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := append(append([]string{}, RequiredSalesColumns...), ColError)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write error report: %w", err)
	}
	for _, rowErr := range rowErrors {
		row := make([]string, 0, len(header))
		for _, col := range RequiredSalesColumns {
			row = append(row, rowErr.Values[col])
		}
		row = append(row, rowErr.Reason)
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write error report: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write error report: %w", err)
	}
	return buf.Bytes(), nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/javajoker/royalty-backend/internal/config"
	"github.com/javajoker/royalty-backend/internal/database"
	"github.com/javajoker/royalty-backend/internal/models"
)

var testRoyaltyConfig = config.RoyaltyConfig{
	InvoicePrefix:   "INV-RYL",
	CompanyName:     "Test Publishing",
	Currency:        "IDR",
	MaxUploadSizeMB: 1,
}

// ServiceSuite gives every test a fresh migrated database and wired services.
type ServiceSuite struct {
	suite.Suite
	ctx         context.Context
	db          *gorm.DB
	storage     *MemoryStorage
	actor       models.Actor
	catalog     *CatalogService
	contracts   *ContractService
	imports     *SalesImportService
	royalties   *RoyaltyService
	settlements *SettlementService
	marketplace *models.Marketplace
}

func (s *ServiceSuite) SetupTest() {
	db, err := database.OpenInMemory(uuid.NewString())
	s.Require().NoError(err)
	s.Require().NoError(database.SeedInitialData(db))

	s.ctx = context.Background()
	s.db = db
	s.storage = NewMemoryStorage()
	s.actor = models.Actor{ID: uuid.New(), Name: "finance"}
	s.catalog = NewCatalogService(db)
	s.contracts = NewContractService(db, s.storage)
	s.imports = NewSalesImportService(db, s.storage)
	s.royalties = NewRoyaltyService(db)
	s.settlements = NewSettlementService(db, s.storage, NewInvoiceRenderer(testRoyaltyConfig), testRoyaltyConfig)

	var amazon models.Marketplace
	s.Require().NoError(db.Where("code = ?", "AMAZON").First(&amazon).Error)
	s.marketplace = &amazon
}

func (s *ServiceSuite) TearDownTest() {
	database.Close(s.db)
}

func (s *ServiceSuite) createAuthor(name string) *models.Author {
	author, err := s.catalog.CreateAuthor(s.ctx, &CreateAuthorRequest{
		Name:  name,
		Email: fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
	})
	s.Require().NoError(err)
	return author
}

func (s *ServiceSuite) createBook(author *models.Author, isbn string) *models.Book {
	book, err := s.catalog.CreateBook(s.ctx, &CreateBookRequest{
		AuthorID: author.ID,
		ISBN:     isbn,
		Title:    "Book " + isbn,
	})
	s.Require().NoError(err)
	return book
}

func (s *ServiceSuite) submitContract(book *models.Book, start, end string, pct string) *models.Contract {
	contract, err := s.contracts.Submit(s.ctx, s.actor, &SubmitContractRequest{
		BookID:            book.ID,
		StartDate:         start,
		EndDate:           end,
		RoyaltyPercentage: percent(pct),
	})
	s.Require().NoError(err)
	return contract
}

func (s *ServiceSuite) approvedContract(book *models.Book, start, end string, pct string) *models.Contract {
	contract := s.submitContract(book, start, end, pct)
	approved, err := s.contracts.Approve(s.ctx, s.actor, contract.ID)
	s.Require().NoError(err)
	return approved
}

func (s *ServiceSuite) addSale(book *models.Book, period, txID string, qty int, price string, status models.SaleStatus) *models.Sale {
	sale := &models.Sale{
		MarketplaceID: s.marketplace.ID,
		TransactionID: txID,
		BookID:        book.ID,
		PeriodMonth:   models.Period(period),
		Quantity:      qty,
		NetPrice:      decimal.RequireFromString(price),
		Status:        status,
	}
	s.Require().NoError(s.db.Create(sale).Error)
	return sale
}

// finalizedCalculation runs a calculation for one author and finalizes it.
func (s *ServiceSuite) finalizedCalculation(period string) *models.RoyaltyCalculation {
	calcs, err := s.royalties.CalculateForPeriod(s.ctx, s.actor, &CalculateRoyaltiesRequest{Period: period})
	s.Require().NoError(err)
	s.Require().Len(calcs, 1)
	calc, err := s.royalties.Finalize(s.ctx, s.actor, calcs[0].ID)
	s.Require().NoError(err)
	return calc
}

// failUpdatesOf makes every later UPDATE on table fail, so the surrounding
// transaction has to roll back.
func (s *ServiceSuite) failUpdatesOf(table string) {
	err := s.db.Callback().Update().Before("gorm:update").Register("test:fail_update_"+table, func(tx *gorm.DB) {
		if tx.Statement.Table == table {
			_ = tx.AddError(errors.New("update of " + table + " failed"))
		}
	})
	s.Require().NoError(err)
}

func percent(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

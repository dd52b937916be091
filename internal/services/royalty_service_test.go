package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/royalty-backend/internal/models"
	"github.com/javajoker/royalty-backend/internal/utils"
)

type RoyaltyServiceTestSuite struct {
	ServiceSuite
	author   *models.Author
	book     *models.Book
	contract *models.Contract
}

func (s *RoyaltyServiceTestSuite) SetupTest() {
	s.ServiceSuite.SetupTest()
	s.author = s.createAuthor("Fajar")
	s.book = s.createBook(s.author, "9780000000101")
	s.contract = s.approvedContract(s.book, "2026-01-01", "2026-12-31", "10")
}

func (s *RoyaltyServiceTestSuite) calculate(period string) []models.RoyaltyCalculation {
	calcs, err := s.royalties.CalculateForPeriod(s.ctx, s.actor, &CalculateRoyaltiesRequest{Period: period})
	s.Require().NoError(err)
	return calcs
}

func (s *RoyaltyServiceTestSuite) TestTenPercentScenario() {
	sale := s.addSale(s.book, "2026-01", "T-1", 5, "10000", models.SaleStatusCompleted)
	s.addSale(s.book, "2026-01", "T-2", 5, "10000", models.SaleStatusRefunded)

	calcs := s.calculate("2026-01")
	s.Require().Len(calcs, 1)

	calc := calcs[0]
	s.Equal(s.author.ID, calc.AuthorID)
	s.Equal(models.RoyaltyStatusDraft, calc.Status)
	s.Equal("5000.00", calc.TotalAmount.StringFixed(2))
	s.Require().Len(calc.Items, 1)
	s.Equal(sale.ID, calc.Items[0].SaleID)
	s.Equal(s.contract.ID, calc.Items[0].ContractID)
	s.Equal("10.00", calc.Items[0].RoyaltyPercentage.StringFixed(2))

	stored, err := s.royalties.Get(s.ctx, calc.ID)
	s.Require().NoError(err)
	s.Equal("5000.00", stored.TotalAmount.StringFixed(2))
	s.Len(stored.Items, 1)
	s.Equal(s.author.Name, stored.Author.Name)
}

func (s *RoyaltyServiceTestSuite) TestRecomputeIsIdempotentWhileDraft() {
	s.addSale(s.book, "2026-01", "T-1", 3, "19999.99", models.SaleStatusCompleted)
	s.addSale(s.book, "2026-01", "T-2", 1, "15000", models.SaleStatusCompleted)
	s.addSale(s.book, "2026-01", "T-3", 2, "5000", models.SaleStatusRefunded)

	first := s.calculate("2026-01")
	second := s.calculate("2026-01")

	s.Require().Len(first, 1)
	s.Require().Len(second, 1)
	s.Equal(first[0].ID, second[0].ID)
	s.True(first[0].TotalAmount.Equal(second[0].TotalAmount))
	s.Equal("7500.00", second[0].TotalAmount.StringFixed(2))

	saleIDs := func(items []models.RoyaltyItem) []uuid.UUID {
		ids := make([]uuid.UUID, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.SaleID)
		}
		return ids
	}
	s.ElementsMatch(saleIDs(first[0].Items), saleIDs(second[0].Items))

	var items int64
	s.Require().NoError(s.db.Model(&models.RoyaltyItem{}).Count(&items).Error)
	s.Equal(int64(2), items)

	var calcs int64
	s.Require().NoError(s.db.Model(&models.RoyaltyCalculation{}).Count(&calcs).Error)
	s.Equal(int64(1), calcs)
}

func (s *RoyaltyServiceTestSuite) TestSalesWithoutCoveringContractAreSkipped() {
	unsigned := s.createBook(s.author, "9780000000102")
	s.addSale(unsigned, "2026-01", "T-1", 1, "1000", models.SaleStatusCompleted)
	s.addSale(s.book, "2026-01", "T-2", 1, "1000", models.SaleStatusCompleted)

	calcs := s.calculate("2026-01")
	s.Require().Len(calcs, 1)
	s.Len(calcs[0].Items, 1)
	s.Equal("100.00", calcs[0].TotalAmount.StringFixed(2))
}

func (s *RoyaltyServiceTestSuite) TestOneCalculationPerAuthor() {
	other := s.createAuthor("Gita")
	otherBook := s.createBook(other, "9780000000201")
	s.approvedContract(otherBook, "2026-01-01", "2026-12-31", "20")

	s.addSale(s.book, "2026-01", "T-1", 1, "1000", models.SaleStatusCompleted)
	s.addSale(otherBook, "2026-01", "T-2", 1, "1000", models.SaleStatusCompleted)
	s.addSale(otherBook, "2026-02", "T-3", 1, "1000", models.SaleStatusCompleted)

	calcs := s.calculate("2026-01")
	s.Require().Len(calcs, 2)

	totals := map[uuid.UUID]string{}
	for _, c := range calcs {
		totals[c.AuthorID] = c.TotalAmount.StringFixed(2)
	}
	s.Equal("100.00", totals[s.author.ID])
	s.Equal("200.00", totals[other.ID])
}

func (s *RoyaltyServiceTestSuite) TestNoSalesYieldsEmptyResult() {
	s.Empty(s.calculate("2026-05"))
}

func (s *RoyaltyServiceTestSuite) TestFinalizeThenCalculateConflicts() {
	s.addSale(s.book, "2026-01", "T-1", 5, "10000", models.SaleStatusCompleted)
	calc := s.finalizedCalculation("2026-01")

	s.addSale(s.book, "2026-01", "T-2", 5, "10000", models.SaleStatusCompleted)
	_, err := s.royalties.CalculateForPeriod(s.ctx, s.actor, &CalculateRoyaltiesRequest{Period: "2026-01"})
	s.True(utils.IsKind(err, utils.KindConflict))

	stored, err := s.royalties.Get(s.ctx, calc.ID)
	s.Require().NoError(err)
	s.Equal(models.RoyaltyStatusFinalized, stored.Status)
	s.Equal("5000.00", stored.TotalAmount.StringFixed(2))
	s.Len(stored.Items, 1)
}

func (s *RoyaltyServiceTestSuite) TestClosedAuthorBlocksWholePeriod() {
	other := s.createAuthor("Hadi")
	otherBook := s.createBook(other, "9780000000301")
	s.approvedContract(otherBook, "2026-01-01", "2026-12-31", "10")

	s.addSale(s.book, "2026-01", "T-1", 1, "1000", models.SaleStatusCompleted)
	calc := s.finalizedCalculation("2026-01")
	s.Equal(s.author.ID, calc.AuthorID)

	s.addSale(otherBook, "2026-01", "T-2", 1, "1000", models.SaleStatusCompleted)
	_, err := s.royalties.CalculateForPeriod(s.ctx, s.actor, &CalculateRoyaltiesRequest{Period: "2026-01"})
	s.True(utils.IsKind(err, utils.KindConflict))

	var count int64
	s.Require().NoError(s.db.Model(&models.RoyaltyCalculation{}).Where("author_id = ?", other.ID).Count(&count).Error)
	s.Zero(count)
}

func (s *RoyaltyServiceTestSuite) TestFinalizeOnlyFromDraft() {
	s.addSale(s.book, "2026-01", "T-1", 1, "1000", models.SaleStatusCompleted)
	calc := s.finalizedCalculation("2026-01")
	s.Require().NotNil(calc.FinalizedAt)
	s.Equal(s.actor.ID, *calc.FinalizedBy)

	_, err := s.royalties.Finalize(s.ctx, s.actor, calc.ID)
	s.True(utils.IsKind(err, utils.KindConflict))

	_, err = s.royalties.Finalize(s.ctx, s.actor, uuid.New())
	s.True(utils.IsKind(err, utils.KindNotFound))
}

func (s *RoyaltyServiceTestSuite) TestUncoveredDraftIsResetAndOmitted() {
	s.addSale(s.book, "2026-01", "T-1", 1, "1000", models.SaleStatusCompleted)
	calcs := s.calculate("2026-01")
	s.Require().Len(calcs, 1)

	_, err := s.contracts.Reject(s.ctx, s.actor, s.contract.ID, &RejectContractRequest{Reason: "terminated"})
	s.Require().NoError(err)

	s.Empty(s.calculate("2026-01"))

	stored, err := s.royalties.Get(s.ctx, calcs[0].ID)
	s.Require().NoError(err)
	s.True(stored.TotalAmount.IsZero())
	s.Empty(stored.Items)
	s.Equal(models.RoyaltyStatusDraft, stored.Status)
}

func (s *RoyaltyServiceTestSuite) TestUncoveredAuthorPersistsNothing() {
	other := s.createAuthor("Laras")
	book := s.createBook(other, "9780000000109")
	s.addSale(book, "2026-01", "T-9", 4, "2500", models.SaleStatusCompleted)

	s.Empty(s.calculate("2026-01"))

	var count int64
	s.Require().NoError(s.db.Model(&models.RoyaltyCalculation{}).Where("author_id = ?", other.ID).Count(&count).Error)
	s.Zero(count)

	_, total, err := s.royalties.List(s.ctx, RoyaltySearchParams{
		PaginationParams: utils.DefaultPaginationParams(),
		AuthorID:         &other.ID,
	})
	s.Require().NoError(err)
	s.Zero(total)
}

func (s *RoyaltyServiceTestSuite) TestRecomputeRollsBackOnFailure() {
	s.addSale(s.book, "2026-01", "T-1", 5, "10000", models.SaleStatusCompleted)
	first := s.calculate("2026-01")
	s.Require().Len(first, 1)

	s.addSale(s.book, "2026-01", "T-2", 1, "10000", models.SaleStatusCompleted)
	s.failUpdatesOf("royalty_calculations")

	_, err := s.royalties.CalculateForPeriod(s.ctx, s.actor, &CalculateRoyaltiesRequest{Period: "2026-01"})
	s.Require().Error(err)

	stored, err := s.royalties.Get(s.ctx, first[0].ID)
	s.Require().NoError(err)
	s.Equal("5000.00", stored.TotalAmount.StringFixed(2))
	s.Require().Len(stored.Items, 1)
	s.Equal(first[0].Items[0].ID, stored.Items[0].ID)
}

func (s *RoyaltyServiceTestSuite) TestCorrectItemRollsBackOnFailure() {
	s.addSale(s.book, "2026-01", "T-1", 5, "10000", models.SaleStatusCompleted)
	calcs := s.calculate("2026-01")
	s.Require().Len(calcs, 1)
	item := calcs[0].Items[0]

	s.failUpdatesOf("royalty_calculations")
	_, err := s.royalties.CorrectItem(s.ctx, s.actor, calcs[0].ID, item.ID, &CorrectItemRequest{
		Amount: decimal.NewFromInt(4000),
		Reason: "returned stock",
	})
	s.Require().Error(err)

	corrections, err := s.royalties.Corrections(s.ctx, calcs[0].ID)
	s.Require().NoError(err)
	s.Empty(corrections)

	stored, err := s.royalties.Get(s.ctx, calcs[0].ID)
	s.Require().NoError(err)
	s.Equal("5000.00", stored.TotalAmount.StringFixed(2))
	s.Equal("5000.00", stored.Items[0].Amount.StringFixed(2))
}

func (s *RoyaltyServiceTestSuite) TestLatestStartingContractWins() {
	book := s.createBook(s.author, "9780000000103")
	s.approvedContract(book, "2026-03-01", "2026-03-15", "10")
	late := s.approvedContract(book, "2026-03-16", "2026-12-31", "25")
	s.addSale(book, "2026-03", "T-1", 1, "1000", models.SaleStatusCompleted)

	calcs := s.calculate("2026-03")
	s.Require().Len(calcs, 1)
	s.Require().Len(calcs[0].Items, 1)
	s.Equal(late.ID, calcs[0].Items[0].ContractID)
	s.Equal("250.00", calcs[0].TotalAmount.StringFixed(2))
}

func (s *RoyaltyServiceTestSuite) TestCorrectItemRecordsAudit() {
	big := s.addSale(s.book, "2026-01", "T-1", 5, "10000", models.SaleStatusCompleted)
	s.addSale(s.book, "2026-01", "T-2", 1, "1000", models.SaleStatusCompleted)
	calc := s.calculate("2026-01")[0]

	var item models.RoyaltyItem
	for _, it := range calc.Items {
		if it.SaleID == big.ID {
			item = it
		}
	}
	s.Require().NotEqual(uuid.Nil, item.ID)

	corrected, err := s.royalties.CorrectItem(s.ctx, s.actor, calc.ID, item.ID, &CorrectItemRequest{
		Amount: decimal.RequireFromString("4500"),
		Reason: "marketplace fee adjustment",
	})
	s.Require().NoError(err)
	s.Equal("4600.00", corrected.TotalAmount.StringFixed(2))

	corrections, err := s.royalties.Corrections(s.ctx, calc.ID)
	s.Require().NoError(err)
	s.Require().Len(corrections, 1)
	s.Equal(item.ID, corrections[0].RoyaltyItemID)
	s.Equal("5000.00", corrections[0].OldAmount.StringFixed(2))
	s.Equal("4500.00", corrections[0].NewAmount.StringFixed(2))
	s.Equal("5100.00", corrections[0].Snapshot["previous_total"])

	_, err = s.royalties.Finalize(s.ctx, s.actor, calc.ID)
	s.Require().NoError(err)
	_, err = s.royalties.CorrectItem(s.ctx, s.actor, calc.ID, item.ID, &CorrectItemRequest{
		Amount: decimal.NewFromInt(1), Reason: "late",
	})
	s.True(utils.IsKind(err, utils.KindConflict))
}

func (s *RoyaltyServiceTestSuite) TestCorrectItemValidation() {
	s.addSale(s.book, "2026-01", "T-1", 1, "1000", models.SaleStatusCompleted)
	calc := s.calculate("2026-01")[0]

	_, err := s.royalties.CorrectItem(s.ctx, s.actor, calc.ID, calc.Items[0].ID, &CorrectItemRequest{
		Amount: decimal.NewFromInt(-1), Reason: "negative",
	})
	s.True(utils.IsKind(err, utils.KindValidation))

	_, err = s.royalties.CorrectItem(s.ctx, s.actor, calc.ID, uuid.New(), &CorrectItemRequest{
		Amount: decimal.NewFromInt(1), Reason: "missing",
	})
	s.True(utils.IsKind(err, utils.KindNotFound))
}

func (s *RoyaltyServiceTestSuite) TestListFilters() {
	s.addSale(s.book, "2026-01", "T-1", 1, "1000", models.SaleStatusCompleted)
	s.addSale(s.book, "2026-02", "T-2", 1, "1000", models.SaleStatusCompleted)
	s.calculate("2026-01")
	s.finalizedCalculation("2026-02")

	status := models.RoyaltyStatusFinalized
	calcs, total, err := s.royalties.List(s.ctx, RoyaltySearchParams{
		PaginationParams: utils.DefaultPaginationParams(),
		AuthorID:         &s.author.ID,
		Status:           &status,
	})
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Require().Len(calcs, 1)
	s.Equal(models.Period("2026-02"), calcs[0].PeriodMonth)
}

func TestRoyaltyServiceTestSuite(t *testing.T) {
	suite.Run(t, new(RoyaltyServiceTestSuite))
}

func TestBuildItemsSkipsUncoveredSales(t *testing.T) {
	bookID := uuid.New()
	contract := models.Contract{
		BookID:            bookID,
		StartDate:         date(2026, 1, 1),
		EndDate:           date(2026, 1, 31),
		RoyaltyPercentage: decimal.RequireFromString("12.5"),
	}
	contract.ID = uuid.New()

	sales := []models.Sale{
		{BookID: bookID, Quantity: 3, NetPrice: decimal.RequireFromString("33.33")},
		{BookID: uuid.New(), Quantity: 1, NetPrice: decimal.NewFromInt(100)},
	}
	items, total := buildItems(uuid.New(), "2026-01", sales, map[uuid.UUID][]models.Contract{bookID: {contract}})

	assert.Len(t, items, 1)
	// 3 x 33.33 x 12.5% = 12.49875
	assert.Equal(t, "12.50", total.StringFixed(2))
}

package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"pgregory.net/rapid"

	"github.com/javajoker/royalty-backend/internal/database"
	"github.com/javajoker/royalty-backend/internal/models"
	"github.com/javajoker/royalty-backend/internal/utils"
)

type ContractServiceTestSuite struct {
	ServiceSuite
	book *models.Book
}

func (s *ContractServiceTestSuite) SetupTest() {
	s.ServiceSuite.SetupTest()
	s.book = s.createBook(s.createAuthor("Ayu"), "9780000000001")
}

func (s *ContractServiceTestSuite) TestSubmitCreatesPendingContract() {
	contract := s.submitContract(s.book, "2026-01-01", "2026-12-31", "12.5")

	s.Equal(models.ContractStatusPending, contract.Status)
	s.True(contract.RoyaltyPercentage.Equal(decimal.RequireFromString("12.5")))
	s.Require().NotNil(contract.SubmittedBy)
	s.Equal(s.actor.ID, *contract.SubmittedBy)
}

func (s *ContractServiceTestSuite) TestSubmitRejectsInvalidInput() {
	cases := []struct {
		name  string
		req   SubmitContractRequest
		field string
	}{
		{"end before start", SubmitContractRequest{BookID: s.book.ID, StartDate: "2026-06-01", EndDate: "2026-01-01", RoyaltyPercentage: percent("10")}, "end_date"},
		{"same day", SubmitContractRequest{BookID: s.book.ID, StartDate: "2026-06-01", EndDate: "2026-06-01", RoyaltyPercentage: percent("10")}, "end_date"},
		{"percentage above 100", SubmitContractRequest{BookID: s.book.ID, StartDate: "2026-01-01", EndDate: "2026-06-01", RoyaltyPercentage: percent("101")}, "royalty_percentage"},
		{"negative percentage", SubmitContractRequest{BookID: s.book.ID, StartDate: "2026-01-01", EndDate: "2026-06-01", RoyaltyPercentage: percent("-1")}, "royalty_percentage"},
		{"missing percentage", SubmitContractRequest{BookID: s.book.ID, StartDate: "2026-01-01", EndDate: "2026-06-01"}, "royalty_percentage"},
		{"bad date", SubmitContractRequest{BookID: s.book.ID, StartDate: "01/01/2026", EndDate: "2026-06-01", RoyaltyPercentage: percent("10")}, "start_date"},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.contracts.Submit(s.ctx, s.actor, &tc.req)
			var appErr *utils.AppError
			s.Require().ErrorAs(err, &appErr)
			s.Equal(utils.KindValidation, appErr.Kind)
			s.Contains(appErr.Fields, tc.field)
		})
	}
}

func (s *ContractServiceTestSuite) TestSubmitUnknownBook() {
	_, err := s.contracts.Submit(s.ctx, s.actor, &SubmitContractRequest{
		BookID:            uuid.New(),
		StartDate:         "2026-01-01",
		EndDate:           "2026-12-31",
		RoyaltyPercentage: percent("10"),
	})
	s.True(utils.IsKind(err, utils.KindNotFound))
}

func (s *ContractServiceTestSuite) TestSubmitStoresDocument() {
	contract, err := s.contracts.Submit(s.ctx, s.actor, &SubmitContractRequest{
		BookID:            s.book.ID,
		StartDate:         "2026-01-01",
		EndDate:           "2026-12-31",
		RoyaltyPercentage: percent("10"),
		Document:          []byte("%PDF-1.4 signed"),
		DocumentName:      "Signed.PDF",
	})
	s.Require().NoError(err)

	s.Contains(contract.FilePath, fmt.Sprintf("contracts/%s/", s.book.ID))
	s.Contains(contract.FilePath, ".pdf")
	data, err := s.storage.Get(s.ctx, contract.FilePath)
	s.Require().NoError(err)
	s.Equal("%PDF-1.4 signed", string(data))
}

func (s *ContractServiceTestSuite) TestApproveRecordsApprover() {
	contract := s.submitContract(s.book, "2026-01-01", "2026-12-31", "10")

	approved, err := s.contracts.Approve(s.ctx, s.actor, contract.ID)
	s.Require().NoError(err)
	s.Equal(models.ContractStatusApproved, approved.Status)

	stored, err := s.contracts.Get(s.ctx, contract.ID)
	s.Require().NoError(err)
	s.Equal(models.ContractStatusApproved, stored.Status)
	s.Require().NotNil(stored.ApprovedBy)
	s.Equal(s.actor.ID, *stored.ApprovedBy)
	s.NotNil(stored.ApprovedAt)
}

func (s *ContractServiceTestSuite) TestApproveIsNoopWhenAlreadyApproved() {
	contract := s.approvedContract(s.book, "2026-01-01", "2026-12-31", "10")

	again, err := s.contracts.Approve(s.ctx, models.Actor{ID: uuid.New()}, contract.ID)
	s.Require().NoError(err)
	s.Equal(models.ContractStatusApproved, again.Status)
	s.Equal(*contract.ApprovedBy, *again.ApprovedBy)
}

func (s *ContractServiceTestSuite) TestOverlappingApprovalConflicts() {
	first := s.approvedContract(s.book, "2026-01-01", "2026-06-30", "10")
	second := s.submitContract(s.book, "2026-06-30", "2026-12-31", "15")

	_, err := s.contracts.Approve(s.ctx, s.actor, second.ID)
	s.True(utils.IsKind(err, utils.KindConflict))

	stored, err := s.contracts.Get(s.ctx, second.ID)
	s.Require().NoError(err)
	s.Equal(models.ContractStatusPending, stored.Status)

	stored, err = s.contracts.Get(s.ctx, first.ID)
	s.Require().NoError(err)
	s.Equal(models.ContractStatusApproved, stored.Status)
}

func (s *ContractServiceTestSuite) TestAdjacentWindowsBothApprove() {
	s.approvedContract(s.book, "2026-01-01", "2026-06-30", "10")
	second := s.submitContract(s.book, "2026-07-01", "2026-12-31", "15")

	_, err := s.contracts.Approve(s.ctx, s.actor, second.ID)
	s.NoError(err)
}

func (s *ContractServiceTestSuite) TestOverlapIgnoresOtherBooks() {
	other := s.createBook(s.createAuthor("Budi"), "9780000000002")
	s.approvedContract(other, "2026-01-01", "2026-12-31", "10")

	contract := s.submitContract(s.book, "2026-01-01", "2026-12-31", "10")
	_, err := s.contracts.Approve(s.ctx, s.actor, contract.ID)
	s.NoError(err)
}

func (s *ContractServiceTestSuite) TestRejectThenApprove() {
	contract := s.submitContract(s.book, "2026-01-01", "2026-12-31", "10")

	rejected, err := s.contracts.Reject(s.ctx, s.actor, contract.ID, &RejectContractRequest{Reason: "  missing signature "})
	s.Require().NoError(err)
	s.Equal(models.ContractStatusRejected, rejected.Status)
	s.Equal("missing signature", rejected.RejectionReason)

	approved, err := s.contracts.Approve(s.ctx, s.actor, contract.ID)
	s.Require().NoError(err)
	s.Equal(models.ContractStatusApproved, approved.Status)

	stored, err := s.contracts.Get(s.ctx, contract.ID)
	s.Require().NoError(err)
	s.Empty(stored.RejectionReason)
}

func (s *ContractServiceTestSuite) TestRejectRequiresReason() {
	contract := s.submitContract(s.book, "2026-01-01", "2026-12-31", "10")

	_, err := s.contracts.Reject(s.ctx, s.actor, contract.ID, &RejectContractRequest{})
	s.True(utils.IsKind(err, utils.KindValidation))
}

func (s *ContractServiceTestSuite) TestExpireApproved() {
	old := s.approvedContract(s.book, "2025-01-01", "2025-12-31", "10")
	current := s.approvedContract(s.book, "2026-01-01", "2026-12-31", "10")
	pending := s.submitContract(s.createBook(s.createAuthor("Citra"), "9780000000003"), "2024-01-01", "2024-12-31", "10")

	count, err := s.contracts.ExpireApproved(s.ctx, time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
	s.Equal(int64(1), count)

	for id, want := range map[uuid.UUID]models.ContractStatus{
		old.ID:     models.ContractStatusExpired,
		current.ID: models.ContractStatusApproved,
		pending.ID: models.ContractStatusPending,
	} {
		stored, err := s.contracts.Get(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(want, stored.Status)
	}

	_, err = s.contracts.Approve(s.ctx, s.actor, old.ID)
	s.True(utils.IsKind(err, utils.KindConflict))
}

func (s *ContractServiceTestSuite) TestListFiltersByStatus() {
	s.approvedContract(s.book, "2025-01-01", "2025-12-31", "10")
	s.submitContract(s.book, "2026-01-01", "2026-12-31", "10")

	status := models.ContractStatusPending
	contracts, total, err := s.contracts.List(s.ctx, ContractSearchParams{
		PaginationParams: utils.DefaultPaginationParams(),
		BookID:           &s.book.ID,
		Status:           &status,
	})
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Require().Len(contracts, 1)
	s.Equal(models.ContractStatusPending, contracts[0].Status)
}

func TestContractServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ContractServiceTestSuite))
}

func TestCoveringContractPrefersLatestStart(t *testing.T) {
	early := models.Contract{StartDate: date(2026, 1, 1), EndDate: date(2026, 1, 15), RoyaltyPercentage: decimal.NewFromInt(10)}
	late := models.Contract{StartDate: date(2026, 1, 16), EndDate: date(2026, 12, 31), RoyaltyPercentage: decimal.NewFromInt(20)}
	early.ID, late.ID = uuid.New(), uuid.New()

	chosen, ambiguous := CoveringContract([]models.Contract{early, late}, "2026-01")
	require.NotNil(t, chosen)
	assert.Equal(t, late.ID, chosen.ID)
	assert.True(t, ambiguous)

	chosen, ambiguous = CoveringContract([]models.Contract{early, late}, "2026-02")
	require.NotNil(t, chosen)
	assert.Equal(t, late.ID, chosen.ID)
	assert.False(t, ambiguous)

	chosen, _ = CoveringContract([]models.Contract{early}, "2026-03")
	assert.Nil(t, chosen)
}

// No sequence of approve, reject and expire leaves two approved contracts of
// one book with intersecting windows.
func TestApprovedContractsNeverOverlap(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		db, err := database.OpenInMemory(uuid.NewString())
		if err != nil {
			rt.Fatalf("open database: %v", err)
		}
		defer database.Close(db)

		svc := &ServiceSuite{}
		svc.SetT(t)
		svc.ctx = context.Background()
		svc.db = db
		svc.storage = NewMemoryStorage()
		svc.catalog = NewCatalogService(db)
		svc.contracts = NewContractService(db, svc.storage)
		book := svc.createBook(svc.createAuthor("Prop"), "9781111111111")

		n := rapid.IntRange(2, 5).Draw(rt, "contracts")
		ids := make([]uuid.UUID, n)
		for i := range ids {
			startMonth := rapid.IntRange(0, 23).Draw(rt, fmt.Sprintf("start%d", i))
			months := rapid.IntRange(1, 12).Draw(rt, fmt.Sprintf("months%d", i))
			start := date(2025, 1, 1).AddDate(0, startMonth, 0)
			end := start.AddDate(0, months, -1)
			ids[i] = svc.submitContract(book, start.Format(dateLayout), end.Format(dateLayout), "10").ID
		}

		steps := rapid.IntRange(1, 15).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			id := ids[rapid.IntRange(0, n-1).Draw(rt, fmt.Sprintf("target%d", i))]
			switch rapid.SampledFrom([]string{"approve", "reject", "expire"}).Draw(rt, fmt.Sprintf("op%d", i)) {
			case "approve":
				if _, err := svc.contracts.Approve(svc.ctx, svc.actor, id); err != nil && !utils.IsKind(err, utils.KindConflict) {
					rt.Fatalf("approve: %v", err)
				}
			case "reject":
				if _, err := svc.contracts.Reject(svc.ctx, svc.actor, id, &RejectContractRequest{Reason: "test"}); err != nil && !utils.IsKind(err, utils.KindConflict) {
					rt.Fatalf("reject: %v", err)
				}
			case "expire":
				asOf := date(2025, 1, 1).AddDate(0, rapid.IntRange(0, 36).Draw(rt, fmt.Sprintf("asof%d", i)), 0)
				if _, err := svc.contracts.ExpireApproved(svc.ctx, asOf); err != nil {
					rt.Fatalf("expire: %v", err)
				}
			}

			var approved []models.Contract
			if err := db.Where("book_id = ? AND status = ?", book.ID, models.ContractStatusApproved).Find(&approved).Error; err != nil {
				rt.Fatalf("load approved: %v", err)
			}
			for a := range approved {
				if other := FindOverlap(&approved[a], approved); other != nil {
					rt.Fatalf("approved contracts %s and %s overlap", approved[a].ID, other.ID)
				}
			}
		}
	})
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

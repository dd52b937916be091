// internal/handlers/contract.go
package handlers

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/javajoker/royalty-backend/internal/i18n"
	"github.com/javajoker/royalty-backend/internal/models"
	"github.com/javajoker/royalty-backend/internal/services"
	"github.com/javajoker/royalty-backend/internal/utils"
)

type ContractHandler struct {
	contractService *services.ContractService
	maxUploadBytes  int64
}

type ExpireContractsRequest struct {
	AsOf string `json:"as_of" validate:"omitempty,datetime=2006-01-02"`
}

func NewContractHandler(contractService *services.ContractService, maxUploadBytes int64) *ContractHandler {
	return &ContractHandler{
		contractService: contractService,
		maxUploadBytes:  maxUploadBytes,
	}
}

// POST /contracts
// Accepts JSON, or multipart/form-data with an optional "file" part holding
// the signed contract document.
func (h *ContractHandler) SubmitContract(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req services.SubmitContractRequest
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if !h.bindMultipart(c, &req) {
			return
		}
	} else if !bindJSON(c, &req) {
		return
	}

	contract, err := h.contractService.Submit(c.Request.Context(), actor, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyContractSubmitted),
		"contract": contract,
	})
}

func (h *ContractHandler) bindMultipart(c *gin.Context, req *services.SubmitContractRequest) bool {
	lang := utils.GetLangFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)

	fields := map[string]string{}
	if bookID, err := uuid.Parse(c.PostForm("book_id")); err == nil {
		req.BookID = bookID
	} else {
		fields["book_id"] = "book_id must be a UUID"
	}
	if pct, err := decimal.NewFromString(strings.TrimSpace(c.PostForm("royalty_percentage"))); err == nil {
		req.RoyaltyPercentage = &pct
	} else {
		fields["royalty_percentage"] = "royalty_percentage must be a number"
	}
	req.StartDate = strings.TrimSpace(c.PostForm("start_date"))
	req.EndDate = strings.TrimSpace(c.PostForm("end_date"))
	if len(fields) > 0 {
		utils.ValidationErrorResponse(c, "", fields)
		return false
	}

	header, err := c.FormFile("file")
	if err == http.ErrMissingFile {
		return true
	}
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "file"), err.Error())
		return false
	}
	if header.Size > h.maxUploadBytes {
		utils.ValidationErrorResponse(c, "", map[string]string{"file": i18n.T(lang, i18n.KeyFileTooLarge, h.maxUploadBytes)})
		return false
	}

	file, err := header.Open()
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "file"), err.Error())
		return false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "file"), err.Error())
		return false
	}
	req.Document = data
	req.DocumentName = header.Filename
	return true
}

// PUT /contracts/:id/approve
func (h *ContractHandler) ApproveContract(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "contract")
	if !ok {
		return
	}

	contract, err := h.contractService.Approve(c.Request.Context(), actor, id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyContractApproved),
		"contract": contract,
	})
}

// PUT /contracts/:id/reject
func (h *ContractHandler) RejectContract(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "contract")
	if !ok {
		return
	}

	var req services.RejectContractRequest
	if !bindJSON(c, &req) {
		return
	}

	contract, err := h.contractService.Reject(c.Request.Context(), actor, id, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyContractRejected),
		"contract": contract,
	})
}

// POST /contracts/expire
func (h *ContractHandler) ExpireContracts(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req ExpireContractsRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	if err := utils.Validate(&req); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	asOf := time.Now()
	if req.AsOf != "" {
		asOf, _ = time.Parse("2006-01-02", req.AsOf)
	}

	count, err := h.contractService.ExpireApproved(c.Request.Context(), asOf)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyContractsExpired, count),
		"expired": count,
	})
}

// GET /contracts/:id
func (h *ContractHandler) GetContract(c *gin.Context) {
	id, ok := parseIDParam(c, "id", "contract")
	if !ok {
		return
	}

	contract, err := h.contractService.Get(c.Request.Context(), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, contract)
}

// GET /contracts
func (h *ContractHandler) ListContracts(c *gin.Context) {
	params := services.ContractSearchParams{PaginationParams: utils.GetPaginationParams(c)}

	bookID, ok := parseUUIDQuery(c, "book_id")
	if !ok {
		return
	}
	params.BookID = bookID

	if status := c.Query("status"); status != "" {
		contractStatus := models.ContractStatus(status)
		if !contractStatus.Valid() {
			utils.ValidationErrorResponse(c, "", map[string]string{"status": "unknown contract status"})
			return
		}
		params.Status = &contractStatus
	}

	contracts, total, err := h.contractService.List(c.Request.Context(), params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.PaginatedResponse(c, utils.CreatePaginationResult(contracts, total, params.PaginationParams))
}

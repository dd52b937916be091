// internal/handlers/royalty.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/royalty-backend/internal/i18n"
	"github.com/javajoker/royalty-backend/internal/models"
	"github.com/javajoker/royalty-backend/internal/services"
	"github.com/javajoker/royalty-backend/internal/utils"
)

type RoyaltyHandler struct {
	royaltyService    *services.RoyaltyService
	settlementService *services.SettlementService
}

func NewRoyaltyHandler(royaltyService *services.RoyaltyService, settlementService *services.SettlementService) *RoyaltyHandler {
	return &RoyaltyHandler{
		royaltyService:    royaltyService,
		settlementService: settlementService,
	}
}

// POST /royalties/calculate
func (h *RoyaltyHandler) Calculate(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req services.CalculateRoyaltiesRequest
	if !bindJSON(c, &req) {
		return
	}

	calcs, err := h.royaltyService.CalculateForPeriod(c.Request.Context(), actor, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":      i18n.T(lang, i18n.KeyRoyaltyCalculated, req.Period),
		"calculations": calcs,
	})
}

// PUT /royalties/:id/finalize
func (h *RoyaltyHandler) Finalize(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "royalty calculation")
	if !ok {
		return
	}

	calc, err := h.royaltyService.Finalize(c.Request.Context(), actor, id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":     i18n.T(lang, i18n.KeyRoyaltyFinalized),
		"calculation": calc,
	})
}

// PUT /royalties/:id/items/:itemId
func (h *RoyaltyHandler) CorrectItem(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "royalty calculation")
	if !ok {
		return
	}
	itemID, ok := parseIDParam(c, "itemId", "royalty item")
	if !ok {
		return
	}

	var req services.CorrectItemRequest
	if !bindJSON(c, &req) {
		return
	}

	calc, err := h.royaltyService.CorrectItem(c.Request.Context(), actor, id, itemID, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":     i18n.T(lang, i18n.KeyRoyaltyCorrected),
		"calculation": calc,
	})
}

// GET /royalties/:id
func (h *RoyaltyHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id", "royalty calculation")
	if !ok {
		return
	}

	calc, err := h.royaltyService.Get(c.Request.Context(), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, calc)
}

// GET /royalties/:id/corrections
func (h *RoyaltyHandler) Corrections(c *gin.Context) {
	id, ok := parseIDParam(c, "id", "royalty calculation")
	if !ok {
		return
	}
	if _, err := h.royaltyService.Get(c.Request.Context(), id); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	corrections, err := h.royaltyService.Corrections(c.Request.Context(), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, corrections)
}

// GET /royalties
func (h *RoyaltyHandler) List(c *gin.Context) {
	params := services.RoyaltySearchParams{PaginationParams: utils.GetPaginationParams(c)}

	period, ok := parsePeriodQuery(c)
	if !ok {
		return
	}
	params.Period = period

	authorID, ok := parseUUIDQuery(c, "author_id")
	if !ok {
		return
	}
	params.AuthorID = authorID

	if status := c.Query("status"); status != "" {
		royaltyStatus := models.RoyaltyStatus(status)
		if !royaltyStatus.Valid() {
			utils.ValidationErrorResponse(c, "", map[string]string{"status": "unknown royalty status"})
			return
		}
		params.Status = &royaltyStatus
	}

	calcs, total, err := h.royaltyService.List(c.Request.Context(), params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.PaginatedResponse(c, utils.CreatePaginationResult(calcs, total, params.PaginationParams))
}

// POST /royalties/:id/invoice
func (h *RoyaltyHandler) GenerateInvoice(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "royalty calculation")
	if !ok {
		return
	}

	payment, created, err := h.settlementService.GenerateInvoice(c.Request.Context(), actor, id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	if !created {
		utils.SuccessResponse(c, gin.H{
			"message": i18n.T(lang, i18n.KeyInvoiceExisting),
			"payment": payment,
		})
		return
	}
	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyInvoiceGenerated),
		"payment": payment,
	})
}

// internal/handlers/payment.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/royalty-backend/internal/i18n"
	"github.com/javajoker/royalty-backend/internal/models"
	"github.com/javajoker/royalty-backend/internal/services"
	"github.com/javajoker/royalty-backend/internal/utils"
)

type PaymentHandler struct {
	settlementService *services.SettlementService
}

func NewPaymentHandler(settlementService *services.SettlementService) *PaymentHandler {
	return &PaymentHandler{
		settlementService: settlementService,
	}
}

// PUT /payments/:id/mark-paid
func (h *PaymentHandler) MarkPaid(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "payment")
	if !ok {
		return
	}

	var req services.MarkPaidRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	payment, err := h.settlementService.MarkPaid(c.Request.Context(), actor, id, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyPaymentPaid),
		"payment": payment,
	})
}

// GET /payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	id, ok := parseIDParam(c, "id", "payment")
	if !ok {
		return
	}

	payment, err := h.settlementService.Get(c.Request.Context(), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, payment)
}

// GET /payments
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	params := services.PaymentSearchParams{PaginationParams: utils.GetPaginationParams(c)}

	period, ok := parsePeriodQuery(c)
	if !ok {
		return
	}
	params.Period = period

	if status := c.Query("status"); status != "" {
		paymentStatus := models.PaymentStatus(status)
		if !paymentStatus.Valid() {
			utils.ValidationErrorResponse(c, "", map[string]string{"status": "unknown payment status"})
			return
		}
		params.Status = &paymentStatus
	}

	payments, total, err := h.settlementService.List(c.Request.Context(), params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.PaginatedResponse(c, utils.CreatePaginationResult(payments, total, params.PaginationParams))
}

// GET /payments/:id/invoice
func (h *PaymentHandler) DownloadInvoice(c *gin.Context) {
	id, ok := parseIDParam(c, "id", "payment")
	if !ok {
		return
	}

	pdf, payment, err := h.settlementService.InvoiceDocument(c.Request.Context(), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+payment.InvoiceNumber+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

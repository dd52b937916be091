// internal/handlers/sales.go
package handlers

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/royalty-backend/internal/i18n"
	"github.com/javajoker/royalty-backend/internal/services"
	"github.com/javajoker/royalty-backend/internal/utils"
)

type SalesHandler struct {
	importService  *services.SalesImportService
	maxUploadBytes int64
}

func NewSalesHandler(importService *services.SalesImportService, maxUploadBytes int64) *SalesHandler {
	return &SalesHandler{
		importService:  importService,
		maxUploadBytes: maxUploadBytes,
	}
}

// POST /sales/import
func (h *SalesHandler) ImportSales(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)

	header, err := c.FormFile("file")
	if err != nil {
		utils.ValidationErrorResponse(c, "", map[string]string{"file": i18n.T(lang, i18n.KeyFileRequired)})
		return
	}
	if header.Size > h.maxUploadBytes {
		utils.ValidationErrorResponse(c, "", map[string]string{"file": i18n.T(lang, i18n.KeyFileTooLarge, h.maxUploadBytes)})
		return
	}

	file, err := header.Open()
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "file"), err.Error())
		return
	}
	defer file.Close()

	req := services.ImportSalesRequest{
		Period:          c.PostForm("period"),
		MarketplaceCode: c.PostForm("marketplace_code"),
		FileName:        filepath.Base(header.Filename),
	}

	result, err := h.importService.Import(c.Request.Context(), actor, &req, file)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	message := i18n.T(lang, i18n.KeySalesImported)
	if result.ImportedRows == 0 {
		message = i18n.T(lang, i18n.KeySalesImportFailed)
	}
	utils.CreatedResponse(c, gin.H{
		"message": message,
		"result":  result,
	})
}

// GET /sales/imports/:id
func (h *SalesHandler) GetImport(c *gin.Context) {
	id, ok := parseIDParam(c, "id", "import")
	if !ok {
		return
	}

	rec, err := h.importService.Get(c.Request.Context(), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, rec)
}

// GET /sales/imports
func (h *SalesHandler) ListImports(c *gin.Context) {
	params := services.ImportSearchParams{PaginationParams: utils.GetPaginationParams(c)}

	period, ok := parsePeriodQuery(c)
	if !ok {
		return
	}
	params.Period = period

	marketplaceID, ok := parseUUIDQuery(c, "marketplace_id")
	if !ok {
		return
	}
	params.MarketplaceID = marketplaceID

	imports, total, err := h.importService.List(c.Request.Context(), params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.PaginatedResponse(c, utils.CreatePaginationResult(imports, total, params.PaginationParams))
}

// GET /sales/imports/:id/errors
func (h *SalesHandler) DownloadErrorReport(c *gin.Context) {
	id, ok := parseIDParam(c, "id", "import")
	if !ok {
		return
	}

	report, err := h.importService.ErrorReport(c.Request.Context(), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+id.String()+`-errors.csv"`)
	c.Data(http.StatusOK, "text/csv", report)
}

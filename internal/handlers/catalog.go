// internal/handlers/catalog.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/royalty-backend/internal/services"
	"github.com/javajoker/royalty-backend/internal/utils"
)

type CatalogHandler struct {
	catalogService *services.CatalogService
}

func NewCatalogHandler(catalogService *services.CatalogService) *CatalogHandler {
	return &CatalogHandler{
		catalogService: catalogService,
	}
}

// POST /authors
func (h *CatalogHandler) CreateAuthor(c *gin.Context) {
	var req services.CreateAuthorRequest
	if !bindJSON(c, &req) {
		return
	}

	author, err := h.catalogService.CreateAuthor(c.Request.Context(), &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.CreatedResponse(c, author)
}

// GET /authors
func (h *CatalogHandler) ListAuthors(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	authors, total, err := h.catalogService.ListAuthors(c.Request.Context(), params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.PaginatedResponse(c, utils.CreatePaginationResult(authors, total, params))
}

// POST /books
func (h *CatalogHandler) CreateBook(c *gin.Context) {
	var req services.CreateBookRequest
	if !bindJSON(c, &req) {
		return
	}

	book, err := h.catalogService.CreateBook(c.Request.Context(), &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.CreatedResponse(c, book)
}

// GET /books
func (h *CatalogHandler) ListBooks(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	authorID, ok := parseUUIDQuery(c, "author_id")
	if !ok {
		return
	}

	books, total, err := h.catalogService.ListBooks(c.Request.Context(), authorID, params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.PaginatedResponse(c, utils.CreatePaginationResult(books, total, params))
}

// POST /marketplaces
func (h *CatalogHandler) CreateMarketplace(c *gin.Context) {
	var req services.CreateMarketplaceRequest
	if !bindJSON(c, &req) {
		return
	}

	marketplace, err := h.catalogService.CreateMarketplace(c.Request.Context(), &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.CreatedResponse(c, marketplace)
}

// GET /marketplaces
func (h *CatalogHandler) ListMarketplaces(c *gin.Context) {
	marketplaces, err := h.catalogService.ListMarketplaces(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, marketplaces)
}

// internal/services/catalog_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/royalty-backend/internal/database"
	"github.com/javajoker/royalty-backend/internal/models"
	"github.com/javajoker/royalty-backend/internal/utils"
)

type CatalogService struct {
	db *gorm.DB
}

type CreateAuthorRequest struct {
	Name  string `json:"name" validate:"required,max=255"`
	Email string `json:"email" validate:"required,email"`
}

type CreateBookRequest struct {
	AuthorID uuid.UUID `json:"author_id" validate:"required"`
	ISBN     string    `json:"isbn" validate:"required,isbn"`
	Title    string    `json:"title" validate:"required,max=255"`
}

type CreateMarketplaceRequest struct {
	Code     string `json:"code" validate:"required,max=50"`
	Name     string `json:"name" validate:"required,max=255"`
	IsActive *bool  `json:"is_active,omitempty"`
}

func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{db: db}
}

func (s *CatalogService) CreateAuthor(ctx context.Context, req *CreateAuthorRequest) (*models.Author, error) {
	if err := utils.Validate(req); err != nil {
		return nil, err
	}

	author := &models.Author{
		Name:  strings.TrimSpace(req.Name),
		Email: strings.ToLower(strings.TrimSpace(req.Email)),
	}
	if err := s.db.WithContext(ctx).Create(author).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, utils.NewConflictError("author with email %s already exists", author.Email)
		}
		return nil, fmt.Errorf("failed to create author: %w", err)
	}
	return author, nil
}

func (s *CatalogService) ListAuthors(ctx context.Context, params utils.PaginationParams) ([]models.Author, int64, error) {
	var authors []models.Author
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Author{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count authors: %w", err)
	}

	query = utils.ApplySort(query, params, []string{"created_at", "name", "email"})
	if err := utils.ApplyPagination(query, params).Find(&authors).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list authors: %w", err)
	}
	return authors, total, nil
}

func (s *CatalogService) CreateBook(ctx context.Context, req *CreateBookRequest) (*models.Book, error) {
	if err := utils.Validate(req); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var author models.Author
	if err := db.First(&author, "id = ?", req.AuthorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("author")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	book := &models.Book{
		AuthorID: author.ID,
		ISBN:     NormalizeISBN(req.ISBN),
		Title:    strings.TrimSpace(req.Title),
	}
	if err := db.Create(book).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, utils.NewConflictError("book with ISBN %s already exists", book.ISBN)
		}
		return nil, fmt.Errorf("failed to create book: %w", err)
	}
	book.Author = &author
	return book, nil
}

func (s *CatalogService) ListBooks(ctx context.Context, authorID *uuid.UUID, params utils.PaginationParams) ([]models.Book, int64, error) {
	var books []models.Book
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Book{})
	if authorID != nil {
		query = query.Where("author_id = ?", *authorID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count books: %w", err)
	}

	query = utils.ApplySort(query, params, []string{"created_at", "title", "isbn"})
	if err := utils.ApplyPagination(query, params).Preload("Author").Find(&books).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list books: %w", err)
	}
	return books, total, nil
}

func (s *CatalogService) CreateMarketplace(ctx context.Context, req *CreateMarketplaceRequest) (*models.Marketplace, error) {
	if err := utils.Validate(req); err != nil {
		return nil, err
	}

	marketplace := &models.Marketplace{
		Code:     NormalizeMarketplaceCode(req.Code),
		Name:     strings.TrimSpace(req.Name),
		IsActive: req.IsActive == nil || *req.IsActive,
	}
	// gorm skips zero-value bools that carry a default tag on create
	if err := s.db.WithContext(ctx).Select("*").Create(marketplace).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, utils.NewConflictError("marketplace %s already exists", marketplace.Code)
		}
		return nil, fmt.Errorf("failed to create marketplace: %w", err)
	}
	return marketplace, nil
}

func (s *CatalogService) ListMarketplaces(ctx context.Context, activeOnly bool) ([]models.Marketplace, error) {
	var marketplaces []models.Marketplace
	query := s.db.WithContext(ctx).Order("code asc")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&marketplaces).Error; err != nil {
		return nil, fmt.Errorf("failed to list marketplaces: %w", err)
	}
	return marketplaces, nil
}

func NormalizeISBN(isbn string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(isbn), "-", ""))
}

func NormalizeMarketplaceCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

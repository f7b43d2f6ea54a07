package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	circerrors "github.com/ngenohkevin/circulation/internal/errors"
	"github.com/ngenohkevin/circulation/internal/models"
)

// CatalogServiceInterface defines branch, item and copy management
type CatalogServiceInterface interface {
	CreateBranch(ctx context.Context, req models.CreateBranchRequest) (*models.Branch, error)
	GetBranch(ctx context.Context, id int64) (*models.Branch, error)
	ListBranches(ctx context.Context) ([]models.Branch, error)
	SetMainBranch(ctx context.Context, id int64) (*models.Branch, error)
	DeleteBranch(ctx context.Context, id int64) error

	CreateItem(ctx context.Context, req models.CreateItemRequest) (*models.LibraryItem, error)
	GetItem(ctx context.Context, id int64) (*models.LibraryItem, error)
	ListItems(ctx context.Context, category *models.ItemCategory) ([]models.LibraryItem, error)
	UpdateItem(ctx context.Context, id int64, req models.UpdateItemRequest) (*models.LibraryItem, error)

	CreateCopy(ctx context.Context, req models.CreateCopyRequest) (*models.ItemCopy, error)
	GetCopy(ctx context.Context, id int64) (*models.ItemCopy, error)
	ListCopies(ctx context.Context, itemID int64) ([]models.ItemCopy, error)
	DeleteCopy(ctx context.Context, id int64) error
}

// CatalogHandler handles the catalog and branch endpoints
type CatalogHandler struct {
	catalogService CatalogServiceInterface
}

func NewCatalogHandler(catalogService CatalogServiceInterface) *CatalogHandler {
	return &CatalogHandler{
		catalogService: catalogService,
	}
}

func (h *CatalogHandler) CreateBranch(c *gin.Context) {
	var req models.CreateBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	branch, err := h.catalogService.CreateBranch(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, branch, "Branch created successfully")
}

func (h *CatalogHandler) GetBranch(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	branch, err := h.catalogService.GetBranch(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, branch, "")
}

func (h *CatalogHandler) ListBranches(c *gin.Context) {
	branches, err := h.catalogService.ListBranches(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respondList(c, branches)
}

// SetMainBranch makes the branch the single main branch
// @Router /api/v1/branches/{id}/main [post]
func (h *CatalogHandler) SetMainBranch(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	branch, err := h.catalogService.SetMainBranch(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, branch, "Main branch updated")
}

// DeleteBranch removes a branch that no copy references
// @Router /api/v1/branches/{id} [delete]
func (h *CatalogHandler) DeleteBranch(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.catalogService.DeleteBranch(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, nil, "Branch deleted successfully")
}

// CreateItem adds a catalog item
// @Summary Create a catalog item
// @Tags catalog
// @Accept json
// @Produce json
// @Param request body models.CreateItemRequest true "Item"
// @Success 201 {object} SuccessResponse{data=models.LibraryItem}
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/items [post]
func (h *CatalogHandler) CreateItem(c *gin.Context) {
	var req models.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	item, err := h.catalogService.CreateItem(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, item, "Item created successfully")
}

func (h *CatalogHandler) GetItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	item, err := h.catalogService.GetItem(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, item, "")
}

// ListItems lists catalog items, optionally filtered by ?category=
func (h *CatalogHandler) ListItems(c *gin.Context) {
	var category *models.ItemCategory
	if raw := c.Query("category"); raw != "" {
		parsed := models.ItemCategory(raw)
		if !parsed.IsValid() {
			respondError(c, circerrors.Validation("unknown category "+raw))
			return
		}
		category = &parsed
	}

	items, err := h.catalogService.ListItems(c.Request.Context(), category)
	if err != nil {
		respondError(c, err)
		return
	}

	respondList(c, items)
}

func (h *CatalogHandler) UpdateItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req models.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	item, err := h.catalogService.UpdateItem(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, item, "Item updated successfully")
}

func (h *CatalogHandler) CreateCopy(c *gin.Context) {
	var req models.CreateCopyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	itemCopy, err := h.catalogService.CreateCopy(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, itemCopy, "Copy created successfully")
}

func (h *CatalogHandler) GetCopy(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	itemCopy, err := h.catalogService.GetCopy(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, itemCopy, "")
}

func (h *CatalogHandler) ListItemCopies(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	copies, err := h.catalogService.ListCopies(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondList(c, copies)
}

// DeleteCopy removes a copy that is not checked out
func (h *CatalogHandler) DeleteCopy(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.catalogService.DeleteCopy(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, nil, "Copy deleted successfully")
}

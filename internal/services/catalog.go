package services

import (
	"context"
	"fmt"
	"log/slog"

	circerrors "github.com/ngenohkevin/circulation/internal/errors"
	"github.com/ngenohkevin/circulation/internal/lock"
	"github.com/ngenohkevin/circulation/internal/models"
	"github.com/ngenohkevin/circulation/internal/store"
	"github.com/ngenohkevin/circulation/internal/validation"
)

// CatalogService handles branches, catalog items and their copies
type CatalogService struct {
	store     store.Store
	locker    lock.Locker
	validator *validation.Validator
	logger    *slog.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(st store.Store, locker lock.Locker, opts ...Option) *CatalogService {
	o := buildOptions(opts)
	return &CatalogService{
		store:     st,
		locker:    locker,
		validator: validation.New(),
		logger:    o.logger,
	}
}

// CreateBranch adds a branch. The first branch always becomes main.
func (s *CatalogService) CreateBranch(ctx context.Context, req models.CreateBranchRequest) (*models.Branch, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	var created models.Branch
	err := runLocked(ctx, s.store, s.locker, []string{lock.BranchesKey()}, func(q store.Querier) error {
		branches, err := q.ListBranches(ctx)
		if err != nil {
			return fmt.Errorf("failed to list branches: %w", err)
		}

		isMain := req.IsMain || len(branches) == 0
		if isMain {
			if err := clearMain(ctx, q, branches); err != nil {
				return err
			}
		}

		created, err = q.CreateBranch(ctx, models.Branch{Name: req.Name, IsMain: isMain})
		if err != nil {
			return fmt.Errorf("failed to create branch: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("branch created", "branch_id", created.ID, "is_main", created.IsMain)
	return &created, nil
}

// GetBranch returns one branch
func (s *CatalogService) GetBranch(ctx context.Context, id int64) (*models.Branch, error) {
	b, err := s.store.GetBranch(ctx, id)
	if err != nil {
		return nil, notFound(err, "branch", id)
	}
	return &b, nil
}

// ListBranches returns all branches
func (s *CatalogService) ListBranches(ctx context.Context) ([]models.Branch, error) {
	branches, err := s.store.ListBranches(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	return branches, nil
}

// SetMainBranch makes id the only main branch
func (s *CatalogService) SetMainBranch(ctx context.Context, id int64) (*models.Branch, error) {
	var main models.Branch
	err := runLocked(ctx, s.store, s.locker, []string{lock.BranchesKey()}, func(q store.Querier) error {
		b, err := q.GetBranch(ctx, id)
		if err != nil {
			return notFound(err, "branch", id)
		}
		branches, err := q.ListBranches(ctx)
		if err != nil {
			return fmt.Errorf("failed to list branches: %w", err)
		}
		if err := clearMain(ctx, q, branches); err != nil {
			return err
		}
		b.IsMain = true
		if err := q.UpdateBranch(ctx, b); err != nil {
			return fmt.Errorf("failed to update branch: %w", err)
		}
		main = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &main, nil
}

// DeleteBranch removes a branch that no copy owns or sits at
func (s *CatalogService) DeleteBranch(ctx context.Context, id int64) error {
	return runLocked(ctx, s.store, s.locker, []string{lock.BranchesKey()}, func(q store.Querier) error {
		b, err := q.GetBranch(ctx, id)
		if err != nil {
			return notFound(err, "branch", id)
		}

		count, err := q.CountCopiesByBranch(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to count copies: %w", err)
		}
		if count > 0 {
			return circerrors.InvalidState("branch %d is referenced by %d copies", id, count).
				WithDetails(map[string]any{"branch_id": id, "copies": count})
		}

		if b.IsMain {
			branches, err := q.ListBranches(ctx)
			if err != nil {
				return fmt.Errorf("failed to list branches: %w", err)
			}
			if len(branches) > 1 {
				return circerrors.InvalidState("branch %d is the main branch; choose another main branch first", id)
			}
		}

		if _, err := q.DeleteBranch(ctx, id); err != nil {
			return fmt.Errorf("failed to delete branch: %w", err)
		}
		return nil
	})
}

func clearMain(ctx context.Context, q store.Querier, branches []models.Branch) error {
	for _, b := range branches {
		if !b.IsMain {
			continue
		}
		b.IsMain = false
		if err := q.UpdateBranch(ctx, b); err != nil {
			return fmt.Errorf("failed to update branch %d: %w", b.ID, err)
		}
	}
	return nil
}

// CreateItem adds a catalog item with its category details
func (s *CatalogService) CreateItem(ctx context.Context, req models.CreateItemRequest) (*models.LibraryItem, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if !req.Category.IsValid() {
		return nil, circerrors.ValidationWithDetails("validation failed", map[string]string{"category": "is not a known category"})
	}
	if err := req.Details.MatchesCategory(req.Category); err != nil {
		return nil, circerrors.ValidationWithDetails("validation failed", map[string]string{"details": err.Error()})
	}

	item, err := s.store.CreateItem(ctx, models.LibraryItem{
		Title:           req.Title,
		Category:        req.Category,
		PublicationYear: req.PublicationYear,
		Description:     req.Description,
		IsNewRelease:    req.IsNewRelease,
		Details:         req.Details,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}

	s.logger.Info("item created", "item_id", item.ID, "category", item.Category)
	return &item, nil
}

// GetItem returns one catalog item
func (s *CatalogService) GetItem(ctx context.Context, id int64) (*models.LibraryItem, error) {
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, notFound(err, "item", id)
	}
	return &item, nil
}

// ListItems returns catalog items, optionally of one category
func (s *CatalogService) ListItems(ctx context.Context, category *models.ItemCategory) ([]models.LibraryItem, error) {
	if category != nil && !category.IsValid() {
		return nil, circerrors.ValidationWithDetails("validation failed", map[string]string{"category": "is not a known category"})
	}
	items, err := s.store.ListItems(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

// UpdateItem applies a partial update. The category cannot change.
func (s *CatalogService) UpdateItem(ctx context.Context, id int64, req models.UpdateItemRequest) (*models.LibraryItem, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	var updated models.LibraryItem
	err := runLocked(ctx, s.store, s.locker, []string{lock.ItemQueueKey(id)}, func(q store.Querier) error {
		item, err := q.GetItem(ctx, id)
		if err != nil {
			return notFound(err, "item", id)
		}

		if req.Title != nil {
			item.Title = *req.Title
		}
		if req.PublicationYear != nil {
			item.PublicationYear = *req.PublicationYear
		}
		if req.Description != nil {
			item.Description = *req.Description
		}
		if req.IsNewRelease != nil {
			item.IsNewRelease = *req.IsNewRelease
		}
		if req.Details != nil {
			if err := req.Details.MatchesCategory(item.Category); err != nil {
				return circerrors.ValidationWithDetails("validation failed", map[string]string{"details": err.Error()})
			}
			item.Details = *req.Details
		}

		if err := q.UpdateItem(ctx, item); err != nil {
			return fmt.Errorf("failed to update item: %w", err)
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// CreateCopy adds an Available copy shelved at its owning branch
func (s *CatalogService) CreateCopy(ctx context.Context, req models.CreateCopyRequest) (*models.ItemCopy, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	condition := req.Condition
	if condition == "" {
		condition = models.ConditionGood
	}
	if !condition.IsValid() {
		return nil, circerrors.ValidationWithDetails("validation failed", map[string]string{"condition": "must be one of New Excellent Good Fair Poor"})
	}

	var created models.ItemCopy
	err := runLocked(ctx, s.store, s.locker, []string{lock.ItemQueueKey(req.LibraryItemID)}, func(q store.Querier) error {
		if _, err := q.GetItem(ctx, req.LibraryItemID); err != nil {
			return notFound(err, "item", req.LibraryItemID)
		}
		if _, err := q.GetBranch(ctx, req.OwningBranchID); err != nil {
			return notFound(err, "branch", req.OwningBranchID)
		}

		var err error
		created, err = q.CreateCopy(ctx, models.ItemCopy{
			LibraryItemID:   req.LibraryItemID,
			OwningBranchID:  req.OwningBranchID,
			CurrentBranchID: req.OwningBranchID,
			Status:          models.CopyStatusAvailable,
			Condition:       condition,
		})
		if err != nil {
			return fmt.Errorf("failed to create copy: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("copy created", "copy_id", created.ID, "item_id", created.LibraryItemID, "branch_id", created.OwningBranchID)
	return &created, nil
}

// GetCopy returns one copy
func (s *CatalogService) GetCopy(ctx context.Context, id int64) (*models.ItemCopy, error) {
	c, err := s.store.GetCopy(ctx, id)
	if err != nil {
		return nil, notFound(err, "copy", id)
	}
	return &c, nil
}

// ListCopies returns the copies of an item
func (s *CatalogService) ListCopies(ctx context.Context, itemID int64) ([]models.ItemCopy, error) {
	if _, err := s.store.GetItem(ctx, itemID); err != nil {
		return nil, notFound(err, "item", itemID)
	}
	copies, err := s.store.ListCopiesByItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list copies: %w", err)
	}
	if copies == nil {
		copies = []models.ItemCopy{}
	}
	return copies, nil
}

// DeleteCopy removes a copy that is neither lent out nor held for pickup
func (s *CatalogService) DeleteCopy(ctx context.Context, id int64) error {
	existing, err := s.store.GetCopy(ctx, id)
	if err != nil {
		return notFound(err, "copy", id)
	}

	return runLocked(ctx, s.store, s.locker, []string{lock.ItemQueueKey(existing.LibraryItemID), lock.CopyKey(id)}, func(q store.Querier) error {
		c, err := lockAndLoadCopy(ctx, q, existing.LibraryItemID, id)
		if err != nil {
			return err
		}
		if c.Status == models.CopyStatusCheckedOut || c.Status == models.CopyStatusReserved {
			return circerrors.InvalidState("copy %d is %s and cannot be deleted", c.ID, c.Status)
		}
		if _, err := q.DeleteCopy(ctx, id); err != nil {
			return fmt.Errorf("failed to delete copy: %w", err)
		}
		return nil
	})
}

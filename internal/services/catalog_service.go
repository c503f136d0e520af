package services

import (
	"context"
	"fmt"

	"github.com/mroshb/shop_economy/internal/models"
	"github.com/mroshb/shop_economy/internal/repositories"
	"github.com/mroshb/shop_economy/internal/security"
	"github.com/mroshb/shop_economy/pkg/errors"
	"github.com/mroshb/shop_economy/pkg/logger"
)

type CatalogService struct {
	env      Env
	itemRepo *repositories.ItemRepository
}

func NewCatalogService(env Env) *CatalogService {
	return &CatalogService{
		env:      env,
		itemRepo: repositories.NewItemRepository(env.DB),
	}
}

func (s *CatalogService) ListActive(ctx context.Context) ([]models.Item, error) {
	var items []models.Item
	err := s.env.read(ctx, "list_items", func(ctx context.Context) error {
		list, err := s.itemRepo.ListActive(ctx)
		items = list
		return err
	})
	return items, err
}

func (s *CatalogService) GetItem(ctx context.Context, itemID string) (*models.Item, error) {
	if err := validateID("item", itemID); err != nil {
		return nil, err
	}
	var item *models.Item
	err := s.env.read(ctx, "get_item", func(ctx context.Context) error {
		i, err := s.itemRepo.GetItemByID(ctx, itemID)
		item = i
		return err
	})
	return item, err
}

// UpdateStock sets the stock level; -1 makes the item unlimited.
func (s *CatalogService) UpdateStock(ctx context.Context, actor Actor, itemID string, stock int64) error {
	if err := actor.requireAdmin(); err != nil {
		return err
	}
	if err := validateID("item", itemID); err != nil {
		return err
	}
	if stock < models.UnlimitedStock {
		return errors.New(errors.ErrCodeValidation, "stock must be -1 (unlimited) or more")
	}

	err := s.env.retry(ctx, "update_stock", true, func(ctx context.Context) error {
		return s.itemRepo.SetStock(ctx, itemID, stock)
	})
	if err != nil {
		logRejected("update_stock", err, "actor", actor.UserID, "item_id", itemID)
		return err
	}
	logger.Info("Item stock set", "actor", actor.UserID, "item_id", itemID, "stock", stock)
	return nil
}

func (s *CatalogService) UpdateStatus(ctx context.Context, actor Actor, itemID string, active bool) error {
	if err := actor.requireAdmin(); err != nil {
		return err
	}
	if err := validateID("item", itemID); err != nil {
		return err
	}

	err := s.env.retry(ctx, "update_item_status", true, func(ctx context.Context) error {
		return s.itemRepo.SetActive(ctx, itemID, active)
	})
	if err != nil {
		logRejected("update_item_status", err, "actor", actor.UserID, "item_id", itemID)
		return err
	}
	logger.Info("Item status set", "actor", actor.UserID, "item_id", itemID, "active", active)
	return nil
}

// ValidateItem checks a catalog row before it is written.
func ValidateItem(item *models.Item) error {
	switch {
	case !security.ValidIdentifier(item.ID):
		return fmt.Errorf("invalid item id %q", item.ID)
	case item.Name == "":
		return fmt.Errorf("item %s: name is required", item.ID)
	case item.Price < 0:
		return fmt.Errorf("item %s: price must not be negative", item.ID)
	case item.SellPrice != nil && *item.SellPrice < 0:
		return fmt.Errorf("item %s: sell price must not be negative", item.ID)
	case item.CurrentStock < models.UnlimitedStock:
		return fmt.Errorf("item %s: stock must be -1 or more", item.ID)
	case item.MaxQuantity != nil && *item.MaxQuantity <= 0:
		return fmt.Errorf("item %s: max quantity must be positive", item.ID)
	case item.DailyPurchaseLimit != nil && *item.DailyPurchaseLimit <= 0:
		return fmt.Errorf("item %s: daily limit must be positive", item.ID)
	case item.IsMembership():
		if _, ok := LookupPlan(item.ID); !ok {
			return fmt.Errorf("item %s: unknown membership plan", item.ID)
		}
	}
	return nil
}

// Upsert validates and writes catalog rows in one batch.
func (s *CatalogService) Upsert(ctx context.Context, items []models.Item) error {
	for i := range items {
		if err := ValidateItem(&items[i]); err != nil {
			return errors.Wrap(err, errors.ErrCodeValidation, "invalid catalog row")
		}
		items[i].Name = security.SanitizeString(items[i].Name, security.MaxNameLength)
		items[i].Description = security.SanitizeNote(items[i].Description)
	}

	err := s.env.retry(ctx, "upsert_items", true, func(ctx context.Context) error {
		return s.itemRepo.Upsert(ctx, items)
	})
	if err != nil {
		return err
	}
	logger.Info("Catalog upserted", "count", len(items))
	return nil
}

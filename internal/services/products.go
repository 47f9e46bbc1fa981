package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noticeboardhq/noticeboard/internal/auth"
	"github.com/noticeboardhq/noticeboard/internal/cache"
	"github.com/noticeboardhq/noticeboard/internal/database"
	"github.com/noticeboardhq/noticeboard/internal/models"
	appErrors "github.com/noticeboardhq/noticeboard/pkg/errors"
	"github.com/noticeboardhq/noticeboard/pkg/validator"
)

// ProductService owns the storefront: the cached catalog, product pages and
// ordering. Stock decrement and order creation run in one transaction.
type ProductService struct {
	db    *database.Facade
	store cache.Store
	inv   *cache.Invalidator
	ttl   time.Duration
}

// NewProductService wires the storefront service.
func NewProductService(db *database.Facade, store cache.Store, inv *cache.Invalidator, ttl time.Duration) (*ProductService, error) {
	if db == nil {
		return nil, errors.New("products: database facade is required")
	}
	if store == nil {
		return nil, errors.New("products: cache store is required")
	}
	return &ProductService{db: db, store: store, inv: inv, ttl: ttl}, nil
}

// ProductInput is the payload for creating or updating a product.
type ProductInput struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents" validate:"gte=0"`
	Stock       int    `json:"stock" validate:"gte=0"`
	Active      bool   `json:"active"`
}

// OrderInput is the payload for placing an order.
type OrderInput struct {
	ProductID uint `json:"product_id" validate:"required"`
	Quantity  int  `json:"quantity" validate:"required,gte=1"`
}

// Catalog returns all active products, cached under a fixed key.
func (s *ProductService) Catalog(ctx context.Context) ([]models.Product, error) {
	return cache.Remember(ctx, s.store, KeyProductCatalog, s.ttl, func(ctx context.Context) ([]models.Product, error) {
		products := []models.Product{}
		err := s.db.DB().WithContext(ctx).
			Where("active = ?", true).
			Order("name ASC").
			Find(&products).Error
		if err != nil {
			return nil, appErrors.ErrQuery.WithInternal(err)
		}
		return products, nil
	})
}

// Get returns one product, cached per id.
func (s *ProductService) Get(ctx context.Context, id uint) (models.Product, error) {
	return cache.Remember(ctx, s.store, ProductKey(id), s.ttl, func(ctx context.Context) (models.Product, error) {
		var product models.Product
		err := s.db.DB().WithContext(ctx).Take(&product, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Product{}, appErrors.ErrNotFound
		}
		if err != nil {
			return models.Product{}, appErrors.ErrQuery.WithInternal(err)
		}
		return product, nil
	})
}

// Create adds a product. The router restricts this to admins.
func (s *ProductService) Create(ctx context.Context, input ProductInput) (models.Product, error) {
	if err := validator.ValidateStruct(input); err != nil {
		return models.Product{}, appErrors.NewValidation(err.Error())
	}

	product := models.Product{
		Name:        input.Name,
		Description: input.Description,
		PriceCents:  input.PriceCents,
		Stock:       input.Stock,
		Active:      input.Active,
	}
	if err := s.db.DB().WithContext(ctx).Create(&product).Error; err != nil {
		return models.Product{}, appErrors.ErrQuery.WithInternal(err)
	}

	s.inv.Invalidate(ctx, "product", product.ID)
	return product, nil
}

// Update rewrites a product.
func (s *ProductService) Update(ctx context.Context, id uint, input ProductInput) (models.Product, error) {
	if err := validator.ValidateStruct(input); err != nil {
		return models.Product{}, appErrors.NewValidation(err.Error())
	}

	res, err := s.db.Execute(ctx,
		"UPDATE products SET name = ?, description = ?, price_cents = ?, stock = ?, active = ?, updated_at = ? WHERE id = ?",
		input.Name, input.Description, input.PriceCents, input.Stock, input.Active, time.Now(), id)
	if err != nil {
		return models.Product{}, err
	}
	if res.RowsAffected == 0 {
		return models.Product{}, appErrors.ErrNotFound
	}

	s.inv.Invalidate(ctx, "product", id)
	return s.loadProduct(ctx, id)
}

// Delete removes a product from the storefront.
func (s *ProductService) Delete(ctx context.Context, id uint) error {
	res, err := s.db.Execute(ctx, "DELETE FROM products WHERE id = ?", id)
	if err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return appErrors.ErrNotFound
	}

	s.inv.Invalidate(ctx, "product", id)
	return nil
}

// PlaceOrder decrements stock and records the order in one transaction. The
// stock guard lives in the UPDATE itself, so two concurrent orders cannot
// oversell; invalidation runs only after the transaction commits.
func (s *ProductService) PlaceOrder(ctx context.Context, identity auth.Identity, input OrderInput) (models.Order, error) {
	if err := validator.ValidateStruct(input); err != nil {
		return models.Order{}, appErrors.NewValidation(err.Error())
	}

	var order models.Order
	err := s.db.Transaction(ctx, func(tx *database.Facade) error {
		var product models.Product
		found, err := tx.SelectOne(ctx, &product,
			"SELECT * FROM products WHERE id = ? AND active = ?", input.ProductID, true)
		if err != nil {
			return err
		}
		if !found {
			return appErrors.ErrNotFound
		}

		res, err := tx.Execute(ctx,
			"UPDATE products SET stock = stock - ?, updated_at = ? WHERE id = ? AND stock >= ?",
			input.Quantity, time.Now(), input.ProductID, input.Quantity)
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return appErrors.NewValidation("insufficient stock")
		}

		order = models.Order{
			ProductID:  input.ProductID,
			UserID:     identity.UserID,
			Quantity:   input.Quantity,
			TotalCents: product.PriceCents * int64(input.Quantity),
			Status:     models.OrderPlaced,
		}
		return tx.DB().WithContext(ctx).Create(&order).Error
	})
	if err != nil {
		return models.Order{}, err
	}

	s.inv.Invalidate(ctx, "order", input.ProductID)
	return order, nil
}

func (s *ProductService) loadProduct(ctx context.Context, id uint) (models.Product, error) {
	var product models.Product
	if err := s.db.DB().WithContext(ctx).Take(&product, id).Error; err != nil {
		return models.Product{}, appErrors.ErrQuery.WithInternal(err)
	}
	return product, nil
}

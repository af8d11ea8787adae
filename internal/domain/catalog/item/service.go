package item

import (
	"context"
	"fmt"
	"time"

	"fieldstock/internal/core/apperror"
	"fieldstock/internal/core/id"
	"fieldstock/internal/core/tx"
	"fieldstock/internal/domain"
	"fieldstock/pkg/numerator"
)

// Service provides business logic for the Item catalog.
// Uses composition with domain.CatalogService for common CRUD operations.
type Service struct {
	*domain.CatalogService[*Item]
	repo      Repository
	numerator *numerator.Service
}

// NewService creates a new Item service.
func NewService(repo Repository, txManager tx.Manager, num *numerator.Service) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*Item]{
		Repo:       repo,
		TxManager:  txManager,
		EntityName: "item",
	})

	svc := &Service{
		CatalogService: base,
		repo:           repo,
		numerator:      num,
	}

	base.Hooks().OnBeforeCreate(svc.prepareForCreate)
	base.Hooks().OnBeforeUpdate(svc.checkUniqueness)

	return svc
}

// prepareForCreate handles code generation and uniqueness checks.
func (s *Service) prepareForCreate(ctx context.Context, it *Item) error {
	if it.Code == "" {
		code, err := s.numerator.Next(ctx, it.OrganizationID, numerator.DefaultConfig("ITM"), nil, time.Now())
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
		it.Code = code
	}

	return s.checkUniqueness(ctx, it)
}

// checkUniqueness verifies SKU and barcode are not already used.
func (s *Service) checkUniqueness(ctx context.Context, it *Item) error {
	if it.SKU != nil && *it.SKU != "" {
		if exists, _ := s.skuExists(ctx, *it.SKU, it.ID); exists {
			return apperror.NewConflict("item with this SKU already exists").
				WithDetail("sku", *it.SKU)
		}
	}

	if it.Barcode != nil && *it.Barcode != "" {
		if exists, _ := s.barcodeExists(ctx, *it.Barcode, it.ID); exists {
			return apperror.NewConflict("item with this barcode already exists").
				WithDetail("barcode", *it.Barcode)
		}
	}

	return nil
}

// --- Entity-specific methods ---

// FindBySKU retrieves an item by SKU.
func (s *Service) FindBySKU(ctx context.Context, sku string) (*Item, error) {
	return s.repo.FindBySKU(ctx, sku)
}

// FindByBarcode retrieves an item by barcode.
func (s *Service) FindByBarcode(ctx context.Context, barcode string) (*Item, error) {
	return s.repo.FindByBarcode(ctx, barcode)
}

func (s *Service) skuExists(ctx context.Context, sku string, excludeID id.ID) (bool, error) {
	existing, err := s.repo.FindBySKU(ctx, sku)
	if err != nil {
		return false, nil
	}
	return existing.ID != excludeID, nil
}

func (s *Service) barcodeExists(ctx context.Context, barcode string, excludeID id.ID) (bool, error) {
	existing, err := s.repo.FindByBarcode(ctx, barcode)
	if err != nil {
		return false, nil
	}
	return existing.ID != excludeID, nil
}

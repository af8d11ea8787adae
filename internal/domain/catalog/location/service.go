package location

import (
	"context"
	"fmt"
	"time"

	"fieldstock/internal/core/tx"
	"fieldstock/internal/domain"
	"fieldstock/pkg/numerator"
)

// Service provides business logic for the Location catalog.
type Service struct {
	*domain.CatalogService[*Location]
	repo      Repository
	numerator *numerator.Service
}

// NewService creates a new Location service.
func NewService(repo Repository, txManager tx.Manager, num *numerator.Service) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*Location]{
		Repo:       repo,
		TxManager:  txManager,
		EntityName: "location",
	})

	svc := &Service{
		CatalogService: base,
		repo:           repo,
		numerator:      num,
	}

	base.Hooks().OnBeforeCreate(svc.prepareForCreate)

	return svc
}

// prepareForCreate generates a code when not provided.
func (s *Service) prepareForCreate(ctx context.Context, loc *Location) error {
	if loc.Code == "" {
		code, err := s.numerator.Next(ctx, loc.OrganizationID, numerator.DefaultConfig("LOC"), nil, time.Now())
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
		loc.Code = code
	}
	return nil
}

// GetDefault retrieves the default receiving location.
func (s *Service) GetDefault(ctx context.Context) (*Location, error) {
	return s.repo.GetDefault(ctx)
}

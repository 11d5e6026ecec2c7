package supplier

import "context"

// CompanyReader abstracts repository operations for the service.
type CompanyReader interface {
	GetByID(ctx context.Context, id string) (Company, error)
	List(ctx context.Context, limit int) ([]Company, error)
}

// Service exposes business-level supplier-company operations.
type Service struct {
	repo CompanyReader
}

// NewService builds a Service using the provided repository.
func NewService(repo CompanyReader) *Service {
	return &Service{repo: repo}
}

// GetByID returns the supplier company for the given identifier.
func (s *Service) GetByID(ctx context.Context, id string) (Company, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns up to limit active supplier companies.
func (s *Service) List(ctx context.Context, limit int) ([]Company, error) {
	return s.repo.List(ctx, limit)
}

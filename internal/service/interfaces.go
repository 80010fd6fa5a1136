package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"news_provisioner/internal/domain"
)

// Store is the administrative surface of the document store.
type Store interface {
	Ping(ctx context.Context) error
	GetUser(ctx context.Context, database, username string) (*domain.Credential, error)
	CreateUser(ctx context.Context, database string, credential domain.Credential) error
	CollectionExists(ctx context.Context, database, collection string) (bool, error)
	CreateCollection(ctx context.Context, database, collection string) error
	ListIndexes(ctx context.Context, database, collection string) ([]domain.IndexSpec, error)
	CreateIndex(ctx context.Context, database string, index domain.IndexSpec) error
}

type RunLedger interface {
	RecordRun(ctx context.Context, report *domain.ProvisionReport, runErr error) (int64, error)
}

type Publisher interface {
	PublishProvisioned(ctx context.Context, report *domain.ProvisionReport) error
	Close() error
}

// Package storage defines the catalog of pods and indexed documents.
package storage

import (
	"context"

	"github.com/hyperjump/podsearch/internal/models"
)

// Catalog persists document metadata and pod records. Document ids are assigned by
// the catalog and never reused; they are the ids stored in pod row maps.
type Catalog interface {
	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id int64) (*models.Document, error)
	GetDocumentByURL(ctx context.Context, url string) (*models.Document, error)
	DeleteDocument(ctx context.Context, id int64) error
	DeleteDocuments(ctx context.Context, ids []int64) error
	DocumentsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Document, error)
	DocumentsByPod(ctx context.Context, key models.PodKey) ([]*models.Document, error)
	DocToURL(ctx context.Context, contributor string) (map[int64]string, error)

	// Pod operations
	EnsurePod(ctx context.Context, key models.PodKey) error
	DeletePod(ctx context.Context, key models.PodKey) error
	RenamePod(ctx context.Context, key models.PodKey, newTheme string) error
	ListPods(ctx context.Context) ([]*models.PodRecord, error)

	// Stats
	CountDocuments(ctx context.Context) (int64, error)

	Close() error
}

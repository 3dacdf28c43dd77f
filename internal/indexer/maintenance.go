package indexer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/podsearch/internal/models"
	apperrors "github.com/hyperjump/podsearch/pkg/errors"
)

// DeleteURL removes an indexed URL from its pod and from the catalog. A pod left
// empty is destroyed.
func (idx *Indexer) DeleteURL(ctx context.Context, u string) error {
	doc, err := idx.catalog.GetDocumentByURL(ctx, u)
	if err != nil {
		return err
	}
	destroyed, err := idx.pods.Remove(ctx, doc.Pod(), doc.ID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("failed to remove from pod: %w", err)
		}
		idx.logger.Warn("catalog document missing from its pod",
			zap.String("url", u), zap.String("pod", doc.Pod().String()), zap.Int64("doc_id", doc.ID))
	}
	if err := idx.catalog.DeleteDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	idx.logger.Debug("indexer document deleted",
		zap.String("url", u), zap.Int64("doc_id", doc.ID), zap.Bool("pod_destroyed", destroyed))
	return nil
}

// RenamePod moves a pod to a new theme. The documents follow.
func (idx *Indexer) RenamePod(ctx context.Context, key models.PodKey, newTheme string) error {
	if err := idx.pods.Rename(ctx, key, newTheme); err != nil {
		return err
	}
	idx.logger.Info("pod renamed", zap.String("pod", key.String()), zap.String("theme", newTheme))
	return nil
}

// DeletePod destroys a pod and removes its documents from the catalog. It returns
// the number of documents removed.
func (idx *Indexer) DeletePod(ctx context.Context, key models.PodKey) (int, error) {
	ids, err := idx.pods.Drop(ctx, key)
	if err != nil {
		return 0, err
	}
	if err := idx.catalog.DeleteDocuments(ctx, ids); err != nil {
		return 0, fmt.Errorf("pod %s dropped but its documents remain in the catalog: %w", key, err)
	}
	idx.logger.Info("pod deleted", zap.String("pod", key.String()), zap.Int("documents", len(ids)))
	return len(ids), nil
}

// Verify checks pod store consistency against the catalog.
func (idx *Indexer) Verify(ctx context.Context) error {
	if err := idx.pods.Verify(ctx, idx.catalog); err != nil {
		idx.logger.Error("pod store consistency check failed", zap.Error(err))
		return err
	}
	return nil
}

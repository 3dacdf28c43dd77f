package watcher

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hyperjump/podsearch/internal/config"
	"github.com/hyperjump/podsearch/internal/docurl"
	"github.com/hyperjump/podsearch/internal/indexer"
	"github.com/hyperjump/podsearch/internal/models"
	apperrors "github.com/hyperjump/podsearch/pkg/errors"
)

// FileIndexer is the part of the indexing pipeline the inbox drives.
type FileIndexer interface {
	IndexFile(ctx context.Context, path, theme, contributor string) *models.IndexOutcome
	DeleteURL(ctx context.Context, u string) error
}

// Inbox indexes files dropped into watched directories as local contributions.
// A file at <root>/<theme>/... goes to that theme; files directly in a root go to
// the default theme. Removing a file deletes its document.
type Inbox struct {
	*Watcher
	idx          FileIndexer
	contributor  string
	defaultTheme string
	ctx          context.Context
	logger       *zap.Logger
}

// NewInbox creates an inbox over cfg.Directories.
func NewInbox(idx FileIndexer, cfg *config.WatchConfig, logger *zap.Logger, opts ...Option) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	in := &Inbox{
		idx:          idx,
		contributor:  cfg.Contributor,
		defaultTheme: cfg.DefaultTheme,
		ctx:          context.Background(),
		logger:       logger,
	}
	opts = append([]Option{WithLogger(logger)}, opts...)
	in.Watcher = NewWatcher(append([]string(nil), cfg.Directories...), cfg.Extensions, in.index, in.remove, opts...)
	return in
}

// Start watches the inbox directories until ctx ends.
func (in *Inbox) Start(ctx context.Context) error {
	in.ctx = ctx
	return in.Watcher.Start(ctx)
}

func (in *Inbox) index(root, path string) {
	theme, ok := indexer.ThemeFor(root, path, in.defaultTheme)
	if !ok {
		return
	}
	out := in.idx.IndexFile(in.ctx, path, theme, in.contributor)
	if !out.Indexed() {
		in.logger.Warn("inbox file not indexed",
			zap.String("path", path), zap.String("reason", out.Reason), zap.Strings("messages", out.Messages))
		return
	}
	in.logger.Info("inbox file indexed", zap.String("path", path), zap.String("pod", out.Pod))
}

func (in *Inbox) remove(_, path string) {
	u := docurl.FileURL(path)
	if err := in.idx.DeleteURL(in.ctx, u); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return
		}
		in.logger.Warn("inbox file removal failed", zap.String("url", u), zap.Error(err))
		return
	}
	in.logger.Info("inbox file removed", zap.String("url", u))
}

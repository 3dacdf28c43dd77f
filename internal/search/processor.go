package search

import (
	"net/http"

	"github.com/hyperjump/podsearch/internal/models"
	"github.com/hyperjump/podsearch/internal/vocab"
	apperrors "github.com/hyperjump/podsearch/pkg/errors"
)

// ProcessQuery parses raw and checks that the requested language is installed.
func ProcessQuery(raw string, reg *vocab.Registry) (*models.SearchQuery, error) {
	q, err := models.ParseQuery(raw, reg.Default())
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, err.Error())
	}
	if !reg.Has(q.Language) {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "language %q is not installed", q.Language)
	}
	return q, nil
}

package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"giftshop/model"
	"giftshop/store"
)

type CatalogService struct {
	store store.DocumentStore
	log   logrus.FieldLogger
}

func NewCatalogService(st store.DocumentStore, log logrus.FieldLogger) *CatalogService {
	return &CatalogService{store: st, log: orDiscard(log)}
}

// ListCategories returns every category ordered by id.
func (c *CatalogService) ListCategories(ctx context.Context) ([]model.Category, error) {
	docs, err := c.store.Query(ctx, store.CollectionCategories)
	if err != nil {
		return nil, backendErr("list categories", err)
	}
	out := make([]model.Category, 0, len(docs))
	for _, d := range docs {
		cat, err := decodeCategory(d)
		if err != nil {
			return nil, err
		}
		out = append(out, cat)
	}
	return out, nil
}

// ListProducts returns the products whose category equals category exactly.
// No match is an empty slice, not an error.
func (c *CatalogService) ListProducts(ctx context.Context, category string) ([]model.Product, error) {
	docs, err := c.store.Query(ctx, store.CollectionProducts, store.Where{Field: "category", Value: category})
	if err != nil {
		return nil, backendErr("list products", err)
	}
	out := make([]model.Product, 0, len(docs))
	for _, d := range docs {
		p, err := decodeProduct(d)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	c.log.WithField("category", category).Debugf("listed %d products", len(out))
	return out, nil
}

func (c *CatalogService) GetProduct(ctx context.Context, id string) (model.Product, error) {
	return c.getProduct(ctx, store.CollectionProducts, id)
}

// GetProductDetails reads the detail record (description, colors, reviews)
// stored separately from the listing entry.
func (c *CatalogService) GetProductDetails(ctx context.Context, id string) (model.Product, error) {
	return c.getProduct(ctx, store.CollectionProductDetails, id)
}

func (c *CatalogService) getProduct(ctx context.Context, collection, id string) (model.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Product{}, invalid("product id required")
	}
	doc, err := c.store.Get(ctx, collection, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Product{}, ErrNotFound
	}
	if err != nil {
		return model.Product{}, backendErr("get "+collection, err)
	}
	return decodeProduct(doc)
}

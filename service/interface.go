package service

import (
	"context"

	"giftshop/model"
)

// Catalog is the read-only product and category surface.
type Catalog interface {
	ListCategories(ctx context.Context) ([]model.Category, error)
	ListProducts(ctx context.Context, category string) ([]model.Product, error)
	GetProduct(ctx context.Context, id string) (model.Product, error)
	GetProductDetails(ctx context.Context, id string) (model.Product, error)
}

type Cart interface {
	AddToCart(ctx context.Context, userID, productID string) error
	RemoveFromCart(ctx context.Context, userID, productID string) error
	ListCart(ctx context.Context, userID string) ([]model.Product, error)
}

type Orders interface {
	Purchase(ctx context.Context, userID, productID string) (model.Order, error)
	ListOrders(ctx context.Context, userID string) ([]model.Order, error)
	GetOrder(ctx context.Context, userID, productID string) (model.Order, error)
}

// ProductReader resolves a single product id. CatalogService satisfies it.
type ProductReader interface {
	GetProduct(ctx context.Context, id string) (model.Product, error)
}

// Recorder receives domain counters. metrics.Registry implements it.
type Recorder interface {
	CartMutation(op string)
	Purchase(result string)
}

type nopRecorder struct{}

func (nopRecorder) CartMutation(string) {}
func (nopRecorder) Purchase(string)     {}

var (
	_ Catalog = (*CatalogService)(nil)
	_ Cart    = (*CartService)(nil)
	_ Orders  = (*OrderService)(nil)
)

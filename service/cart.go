package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"giftshop/model"
	"giftshop/store"
)

// listCartConcurrency bounds the product lookups ListCart runs at once.
const listCartConcurrency = 8

type CartService struct {
	store   store.DocumentStore
	catalog ProductReader
	log     logrus.FieldLogger
	rec     Recorder
}

func NewCartService(st store.DocumentStore, catalog ProductReader, log logrus.FieldLogger, rec Recorder) *CartService {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &CartService{store: st, catalog: catalog, log: orDiscard(log), rec: rec}
}

// AddToCart puts productID in the user's cart. Adding a product that is
// already there leaves the cart unchanged. The cart is created on first add.
func (c *CartService) AddToCart(ctx context.Context, userID, productID string) error {
	uid, err := RequireUser(userID)
	if err != nil {
		return err
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return invalid("product id required")
	}
	if _, err := c.catalog.GetProduct(ctx, pid); err != nil {
		return err
	}

	if err := c.store.ArrayUnion(ctx, store.CollectionCarts, uid, model.CartItemsField, pid); err != nil {
		return backendErr("add to cart", err)
	}
	c.rec.CartMutation("add")
	return nil
}

// RemoveFromCart drops productID from the cart. Removing something that is
// not there, or from a cart that was never created, is a no-op.
func (c *CartService) RemoveFromCart(ctx context.Context, userID, productID string) error {
	uid, err := RequireUser(userID)
	if err != nil {
		return err
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return invalid("product id required")
	}

	if err := c.store.ArrayRemove(ctx, store.CollectionCarts, uid, model.CartItemsField, pid); err != nil {
		return backendErr("remove from cart", err)
	}
	c.rec.CartMutation("remove")
	return nil
}

// ListCart resolves the cart's product ids against the catalog, in cart
// order. Ids whose product no longer exists are skipped.
func (c *CartService) ListCart(ctx context.Context, userID string) ([]model.Product, error) {
	uid, err := RequireUser(userID)
	if err != nil {
		return nil, err
	}
	cart, err := loadCart(ctx, c.store, uid)
	if err != nil {
		return nil, err
	}

	resolved := make([]*model.Product, len(cart.Items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listCartConcurrency)
	for i, pid := range cart.Items {
		i, pid := i, pid
		g.Go(func() error {
			p, err := c.catalog.GetProduct(gctx, pid)
			if errors.Is(err, ErrNotFound) {
				c.log.WithFields(logrus.Fields{"user_id": uid, "product_id": pid}).Debug("skipping dangling cart item")
				return nil
			}
			if err != nil {
				return err
			}
			resolved[i] = &p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]model.Product, 0, len(resolved))
	for _, p := range resolved {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

// loadCart reads the user's cart. A cart that was never created is empty.
func loadCart(ctx context.Context, st store.DocumentStore, userID string) (model.Cart, error) {
	doc, err := st.Get(ctx, store.CollectionCarts, userID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Cart{UserID: userID, Items: []string{}}, nil
	}
	if err != nil {
		return model.Cart{}, backendErr("get cart", err)
	}
	return decodeCart(doc)
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"giftshop/model"
	"giftshop/store"
)

type OrderService struct {
	store   store.DocumentStore
	catalog ProductReader
	log     logrus.FieldLogger
	rec     Recorder
	now     func() time.Time
}

func NewOrderService(st store.DocumentStore, catalog ProductReader, log logrus.FieldLogger, rec Recorder) *OrderService {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &OrderService{store: st, catalog: catalog, log: orDiscard(log), rec: rec, now: time.Now}
}

// Purchase finalizes one cart line. The order record and the cart removal go
// to the store as a single commit with the order first, so a failure leaves
// both untouched and the call can be retried.
func (o *OrderService) Purchase(ctx context.Context, userID, productID string) (model.Order, error) {
	uid, err := RequireUser(userID)
	if err != nil {
		return model.Order{}, err
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return model.Order{}, invalid("product id required")
	}

	cart, err := loadCart(ctx, o.store, uid)
	if err != nil {
		o.rec.Purchase("error")
		return model.Order{}, err
	}
	if !cart.Contains(pid) {
		o.rec.Purchase("not_in_cart")
		return model.Order{}, ErrNotInCart
	}

	// price snapshot; a product removed from the catalog can still be bought
	price := decimal.Zero
	p, err := o.catalog.GetProduct(ctx, pid)
	switch {
	case errors.Is(err, ErrNotFound):
		o.log.WithFields(logrus.Fields{"user_id": uid, "product_id": pid}).Warn("purchasing product missing from catalog")
	case err != nil:
		o.rec.Purchase("error")
		return model.Order{}, err
	default:
		price = p.Price
	}

	order := model.Order{
		UserID:    uid,
		ProductID: pid,
		Status:    model.OrderStatusPurchased,
		Price:     price,
		UpdatedAt: o.now().UTC(),
	}
	data, err := json.Marshal(order)
	if err != nil {
		return model.Order{}, err
	}
	id := model.OrderID(uid, pid)

	err = o.store.Commit(ctx,
		store.SetOp(store.CollectionOrders, id, data),
		store.RemoveOp(store.CollectionCarts, uid, model.CartItemsField, pid),
	)
	if err != nil {
		o.rec.Purchase("error")
		return model.Order{}, backendErr("purchase", err)
	}
	o.rec.Purchase("ok")

	order.ID = id
	return order, nil
}

// ListOrders returns the user's orders ordered by id.
func (o *OrderService) ListOrders(ctx context.Context, userID string) ([]model.Order, error) {
	uid, err := RequireUser(userID)
	if err != nil {
		return nil, err
	}
	docs, err := o.store.Query(ctx, store.CollectionOrders, store.Where{Field: "userId", Value: uid})
	if err != nil {
		return nil, backendErr("list orders", err)
	}
	out := make([]model.Order, 0, len(docs))
	for _, d := range docs {
		ord, err := decodeOrder(d)
		if err != nil {
			return nil, err
		}
		out = append(out, ord)
	}
	return out, nil
}

func (o *OrderService) GetOrder(ctx context.Context, userID, productID string) (model.Order, error) {
	uid, err := RequireUser(userID)
	if err != nil {
		return model.Order{}, err
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return model.Order{}, invalid("product id required")
	}
	doc, err := o.store.Get(ctx, store.CollectionOrders, model.OrderID(uid, pid))
	if errors.Is(err, store.ErrNotFound) {
		return model.Order{}, ErrNotFound
	}
	if err != nil {
		return model.Order{}, backendErr("get order", err)
	}
	return decodeOrder(doc)
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatusPurchased is the only status the order finalizer writes.
const OrderStatusPurchased = "Purchased"

// Order records the outcome of one purchased cart line.
type Order struct {
	ID        string          `json:"id,omitempty"`
	UserID    string          `json:"userId"`
	ProductID string          `json:"productId"`
	Status    string          `json:"status"`
	Price     decimal.Decimal `json:"price"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// OrderID is the document id of the order for a user's product.
func OrderID(userID, productID string) string {
	return userID + ":" + productID
}

package model

// CartItemsField is the document field holding the cart's product ids.
const CartItemsField = "items"

// Cart is the per-user set of product ids awaiting purchase.
type Cart struct {
	UserID string   `json:"-"`
	Items  []string `json:"items"`
}

func (c Cart) Contains(productID string) bool {
	for _, id := range c.Items {
		if id == productID {
			return true
		}
	}
	return false
}

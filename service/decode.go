package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"giftshop/model"
	"giftshop/store"
)

func malformed(doc store.Document, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s/%s: %s", ErrBackendUnavailable, doc.Collection, doc.ID, fmt.Sprintf(format, args...))
}

// decodeProduct validates the shape of a product (or product detail) document
// before unmarshalling it. price may be stored as a JSON number or a numeric
// string.
func decodeProduct(doc store.Document) (model.Product, error) {
	if !gjson.ValidBytes(doc.Data) {
		return model.Product{}, malformed(doc, "invalid json")
	}
	res := gjson.GetManyBytes(doc.Data, "name", "price", "category")
	name, price, category := res[0], res[1], res[2]

	if name.Type != gjson.String || name.Str == "" {
		return model.Product{}, malformed(doc, "missing name")
	}
	if category.Exists() && category.Type != gjson.String {
		return model.Product{}, malformed(doc, "category is not a string")
	}

	var amount decimal.Decimal
	switch price.Type {
	case gjson.Number:
		d, err := decimal.NewFromString(price.Raw)
		if err != nil {
			return model.Product{}, malformed(doc, "bad price %s", price.Raw)
		}
		amount = d
	case gjson.String:
		d, err := decimal.NewFromString(price.Str)
		if err != nil {
			return model.Product{}, malformed(doc, "bad price %q", price.Str)
		}
		amount = d
	default:
		return model.Product{}, malformed(doc, "missing price")
	}
	if amount.IsNegative() {
		return model.Product{}, malformed(doc, "negative price %s", amount)
	}

	var p model.Product
	if err := json.Unmarshal(doc.Data, &p); err != nil {
		return model.Product{}, malformed(doc, "%v", err)
	}
	p.ID = doc.ID
	p.Price = amount
	return p, nil
}

func decodeCategory(doc store.Document) (model.Category, error) {
	name := gjson.GetBytes(doc.Data, "name")
	if name.Type != gjson.String || name.Str == "" {
		return model.Category{}, malformed(doc, "missing name")
	}
	var c model.Category
	if err := json.Unmarshal(doc.Data, &c); err != nil {
		return model.Category{}, malformed(doc, "%v", err)
	}
	c.ID = doc.ID
	return c, nil
}

func decodeCart(doc store.Document) (model.Cart, error) {
	items := gjson.GetBytes(doc.Data, model.CartItemsField)
	if items.Exists() && items.Type != gjson.Null && !items.IsArray() {
		return model.Cart{}, malformed(doc, "items is not an array")
	}
	// older carts may hold duplicates or blank ids; both are dropped on read
	cart := model.Cart{UserID: doc.ID, Items: []string{}}
	seen := map[string]bool{}
	for _, it := range items.Array() {
		if it.Type != gjson.String {
			return model.Cart{}, malformed(doc, "non-string cart item %s", it.Raw)
		}
		id := it.Str
		if strings.TrimSpace(id) == "" || seen[id] {
			continue
		}
		seen[id] = true
		cart.Items = append(cart.Items, id)
	}
	return cart, nil
}

func decodeOrder(doc store.Document) (model.Order, error) {
	var o model.Order
	if err := json.Unmarshal(doc.Data, &o); err != nil {
		return model.Order{}, malformed(doc, "%v", err)
	}
	if o.ProductID == "" || o.Status == "" {
		return model.Order{}, malformed(doc, "missing productId or status")
	}
	o.ID = doc.ID
	return o, nil
}

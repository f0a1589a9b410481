package model

import "github.com/shopspring/decimal"

// Product is a catalog item. Description, Colors, Reviews and Ratings are only
// populated on product detail records.
type Product struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	ImageURL    string          `json:"imageUrl,omitempty"`
	Description string          `json:"description,omitempty"`
	Colors      []string        `json:"colors,omitempty"`
	Reviews     []string        `json:"reviews,omitempty"`
	Ratings     *float64        `json:"ratings,omitempty"`
}

type Category struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

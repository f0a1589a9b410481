// Package seed loads a catalog fixture into the document store.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"giftshop/model"
	"giftshop/store"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// productNamespace derives stable ids for fixture products that omit one.
var productNamespace = uuid.MustParse("6f1c2b1e-8f0a-4c55-9a43-2d1f6c0b7e19")

type Catalog struct {
	Categories []CategoryEntry `yaml:"categories"`
	Products   []ProductEntry  `yaml:"products"`
}

type CategoryEntry struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Image string `yaml:"image"`
}

// ProductEntry keeps price as text so YAML never rounds it through a float.
type ProductEntry struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Price       string   `yaml:"price"`
	Category    string   `yaml:"category"`
	ImageURL    string   `yaml:"imageUrl"`
	Description string   `yaml:"description"`
	Colors      []string `yaml:"colors"`
	Reviews     []string `yaml:"reviews"`
	Ratings     *float64 `yaml:"ratings"`
}

type Stats struct {
	Categories int
	Products   int
}

// Default returns the catalog shipped with the binary.
func Default() (Catalog, error) {
	return Load(bytes.NewReader(defaultCatalog))
}

// Load parses and validates a YAML catalog.
func Load(r io.Reader) (Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

func (c *Catalog) validate() error {
	names := map[string]bool{}
	for i, cat := range c.Categories {
		if cat.ID == "" || cat.Name == "" {
			return fmt.Errorf("category %d: id and name are required", i)
		}
		names[cat.Name] = true
	}

	seen := map[string]bool{}
	for i := range c.Products {
		p := &c.Products[i]
		if p.Name == "" {
			return fmt.Errorf("product %d: name is required", i)
		}
		if p.ID == "" {
			p.ID = uuid.NewSHA1(productNamespace, []byte(p.Category+"/"+p.Name)).String()
		}
		if seen[p.ID] {
			return fmt.Errorf("product %s: duplicate id", p.ID)
		}
		seen[p.ID] = true

		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return fmt.Errorf("product %s: bad price %q", p.ID, p.Price)
		}
		if price.IsNegative() {
			return fmt.Errorf("product %s: negative price", p.ID)
		}
		if !names[p.Category] {
			return fmt.Errorf("product %s: unknown category %q", p.ID, p.Category)
		}
	}
	return nil
}

// Apply writes every category, product listing and product detail record in
// one commit. Existing documents with the same ids are replaced.
func Apply(ctx context.Context, st store.DocumentStore, c Catalog) (Stats, error) {
	ops := make([]store.Op, 0, len(c.Categories)+2*len(c.Products))

	for _, cat := range c.Categories {
		data, err := json.Marshal(model.Category{Name: cat.Name, Image: cat.Image})
		if err != nil {
			return Stats{}, err
		}
		ops = append(ops, store.SetOp(store.CollectionCategories, cat.ID, data))
	}

	for _, p := range c.Products {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return Stats{}, fmt.Errorf("product %s: %w", p.ID, err)
		}
		listing := model.Product{
			Name:     p.Name,
			Price:    price,
			Category: p.Category,
			ImageURL: p.ImageURL,
		}
		detail := listing
		detail.Description = p.Description
		detail.Colors = p.Colors
		detail.Reviews = p.Reviews
		detail.Ratings = p.Ratings

		for _, w := range []struct {
			collection string
			doc        model.Product
		}{
			{store.CollectionProducts, listing},
			{store.CollectionProductDetails, detail},
		} {
			data, err := json.Marshal(w.doc)
			if err != nil {
				return Stats{}, err
			}
			ops = append(ops, store.SetOp(w.collection, p.ID, data))
		}
	}

	if err := st.Commit(ctx, ops...); err != nil {
		return Stats{}, fmt.Errorf("write catalog: %w", err)
	}
	return Stats{Categories: len(c.Categories), Products: len(c.Products)}, nil
}

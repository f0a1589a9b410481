package service

import (
	"io"

	"github.com/sirupsen/logrus"

	"giftshop/store"
)

// Service bundles the domain services over one document store.
type Service struct {
	Catalog *CatalogService
	Cart    *CartService
	Orders  *OrderService
}

// NewService wires the catalog, cart and order services. log and rec may be nil.
func NewService(st store.DocumentStore, log logrus.FieldLogger, rec Recorder) *Service {
	log = orDiscard(log)
	if rec == nil {
		rec = nopRecorder{}
	}
	catalog := NewCatalogService(st, log)
	return &Service{
		Catalog: catalog,
		Cart:    NewCartService(st, catalog, log, rec),
		Orders:  NewOrderService(st, catalog, log, rec),
	}
}

func orDiscard(log logrus.FieldLogger) logrus.FieldLogger {
	if log != nil {
		return log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

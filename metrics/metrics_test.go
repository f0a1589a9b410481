package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInstrumentHandlerUsesRouteTemplate(t *testing.T) {
	reg := New()
	r := mux.NewRouter()
	r.Use(reg.InstrumentHandler)
	r.HandleFunc("/products/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products/"+id, nil))
	}

	got := testutil.ToFloat64(reg.httpRequests.WithLabelValues("GET", "/products/{id}", "404"))
	assert.Equal(t, float64(2), got)
}

func TestDomainCounters(t *testing.T) {
	reg := New()
	reg.CartMutation("add")
	reg.CartMutation("add")
	reg.Purchase("ok")

	assert.Equal(t, float64(2), testutil.ToFloat64(reg.cartMutations.WithLabelValues("add")))
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.purchases.WithLabelValues("ok")))
	assert.Equal(t, float64(0), testutil.ToFloat64(reg.purchases.WithLabelValues("error")))
}

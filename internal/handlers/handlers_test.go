package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-jewelry-orders/internal/apperr"
	"github.com/imrishuroy/go-jewelry-orders/internal/auth"
	"github.com/imrishuroy/go-jewelry-orders/internal/dto"
	"github.com/imrishuroy/go-jewelry-orders/internal/dynamotest"
	"github.com/imrishuroy/go-jewelry-orders/internal/idempotency"
	"github.com/imrishuroy/go-jewelry-orders/internal/orders"
	"github.com/imrishuroy/go-jewelry-orders/internal/rates"
	"github.com/imrishuroy/go-jewelry-orders/internal/users"
)

const (
	ordersTable  = "orders"
	numbersTable = "order_numbers"
	idemTable    = "idempotency"
	ratesTable   = "rates"
	usersTable   = "users"
)

func init() { gin.SetMode(gin.TestMode) }

type testAPI struct {
	t        *testing.T
	router   *gin.Engine
	fake     *dynamotest.Fake
	verifier *auth.Verifier
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	f := dynamotest.New().
		CreateTable(ordersTable, "order_id").
		AddIndex(ordersTable, orders.UserIndex, "user_id", "created_ms").
		AddIndex(ordersTable, orders.StatusIndex, "status", "created_ms").
		CreateTable(numbersTable, "order_number").
		CreateTable(idemTable, "idempotency_key").
		CreateTable(ratesTable, "rate_id").
		AddIndex(ratesTable, rates.KindIndex, "kind", "created_ms").
		CreateTable(usersTable, "user_id")

	userStore := users.NewStore(f, usersTable)
	rateSvc := rates.NewService(rates.NewStore(f, ratesTable), rates.ServiceConfig{}, nil)
	idem := idempotency.NewStore(f, idemTable, time.Hour)
	orderSvc := orders.NewService(
		orders.NewStore(f, orders.Tables{Orders: ordersTable, Numbers: numbersTable, Idempotency: idemTable}),
		orders.Config{Rates: rateSvc, Users: userStore, Idempotency: idem},
		nil,
	)
	v := auth.NewVerifier("test-secret", "jewelry-orders")

	return &testAPI{
		t: t,
		router: NewRouter(Deps{
			Orders:      orderSvc,
			Rates:       rateSvc,
			Idempotency: idem,
			Verifier:    v,
			Users:       userStore,
		}),
		fake:     f,
		verifier: v,
	}
}

func (a *testAPI) token(id, role string) string {
	a.t.Helper()
	tok, err := a.verifier.Sign(users.Identity{ID: id, Role: role, Name: "Name " + id, Email: id + "@example.com"}, time.Hour)
	if err != nil {
		a.t.Fatalf("sign: %v", err)
	}
	return tok
}

type call struct {
	method, path, token, idemKey string
	body                         any
}

func (a *testAPI) do(c call) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		if err := json.NewEncoder(&buf).Encode(c.body); err != nil {
			a.t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.idemKey != "" {
		req.Header.Set(idempotencyHeader, c.idemKey)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func expect(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d: %s", w.Code, status, w.Body.String())
	}
}

func orderBody(items ...map[string]any) map[string]any {
	return map[string]any{
		"items": items,
		"shippingAddress": map[string]any{
			"name": "Asha Rao", "address": "12 MG Road", "city": "Bengaluru",
			"postalCode": "560001", "country": "IN", "phone": "+91 98450 00000",
		},
		"sameAsShipping": true,
		"paymentMethod":  "upi",
	}
}

func ring() map[string]any {
	return map[string]any{"productId": "p-ring", "name": "Ring", "priceType": "fixed", "unitPrice": 50000, "quantity": 2}
}

func chain(grams float64) map[string]any {
	return map[string]any{"productId": "p-chain", "name": "Chain", "material": "Gold 22K", "priceType": "weight-based", "weight": grams, "quantity": 1}
}

func (a *testAPI) createOrder(token, key string) orders.Order {
	a.t.Helper()
	w := a.do(call{method: http.MethodPost, path: "/orders", token: token, idemKey: key, body: orderBody(ring())})
	expect(a.t, w, http.StatusCreated)
	return decode[orders.Order](a.t, w)
}

func TestHealthAndPublicRate(t *testing.T) {
	api := newTestAPI(t)
	expect(t, api.do(call{method: http.MethodGet, path: "/health"}), http.StatusOK)

	w := api.do(call{method: http.MethodGet, path: "/rates/current"})
	expect(t, w, http.StatusOK)
	rec := decode[rates.Record](t, w)
	if rec.GoldRate != 0 || rec.SilverRate != 0 || rec.Currency != rates.CurrencyINR {
		t.Fatalf("expected the zero-rate record, got %+v", rec)
	}
}

func TestCreateOrder_RequiresAuthAndKey(t *testing.T) {
	api := newTestAPI(t)
	tok := api.token("cust-1", users.RoleCustomer)

	expect(t, api.do(call{method: http.MethodPost, path: "/orders", idemKey: "k1", body: orderBody(ring())}), http.StatusUnauthorized)

	w := api.do(call{method: http.MethodPost, path: "/orders", token: tok, body: orderBody(ring())})
	expect(t, w, http.StatusBadRequest)
	if body := decode[dto.BaseError](t, w); body.Fields[0].Field != idempotencyHeader {
		t.Fatalf("body = %+v", body)
	}

	w = api.do(call{method: http.MethodPost, path: "/orders", token: tok, idemKey: "k1", body: orderBody(chain(0))})
	expect(t, w, http.StatusBadRequest)
	if body := decode[dto.BaseError](t, w); len(body.Fields) != 1 || body.Fields[0].Field != "items[0].weight" {
		t.Fatalf("body = %+v", body)
	}
	if n := len(api.fake.Items(ordersTable)); n != 0 {
		t.Fatalf("%d orders stored by rejected requests", n)
	}
}

func TestCreateOrder_IdempotentReplay(t *testing.T) {
	api := newTestAPI(t)
	tok := api.token("cust-1", users.RoleCustomer)

	first := api.do(call{method: http.MethodPost, path: "/orders", token: tok, idemKey: "checkout-1", body: orderBody(ring())})
	expect(t, first, http.StatusCreated)
	created := decode[orders.Order](t, first)
	if created.Total != 100000 || created.Status != orders.StatusPending || created.CustomerEmail != "cust-1@example.com" {
		t.Fatalf("unexpected order %+v", created)
	}
	if loc := first.Header().Get("Location"); loc != "/orders/"+created.OrderID {
		t.Fatalf("Location = %q", loc)
	}

	again := api.do(call{method: http.MethodPost, path: "/orders", token: tok, idemKey: "checkout-1", body: orderBody(ring())})
	expect(t, again, http.StatusCreated)
	if again.Header().Get("Idempotent-Replayed") != "true" || again.Body.String() != first.Body.String() {
		t.Fatalf("replay mismatch:\n%s\n%s", first.Body.String(), again.Body.String())
	}
	if n := len(api.fake.Items(ordersTable)); n != 1 {
		t.Fatalf("orders stored = %d, want 1", n)
	}

	// same header from another customer is a different key
	other := api.token("cust-2", users.RoleCustomer)
	w := api.do(call{method: http.MethodPost, path: "/orders", token: other, idemKey: "checkout-1", body: orderBody(ring())})
	expect(t, w, http.StatusCreated)
	if n := len(api.fake.Items(ordersTable)); n != 2 {
		t.Fatalf("orders stored = %d, want 2", n)
	}
}

func TestCreateOrder_InProgressReplay(t *testing.T) {
	api := newTestAPI(t)
	tok := api.token("cust-1", users.RoleCustomer)

	api.fake.FailNext("UpdateItem", errors.New("throttled"))
	first := api.do(call{method: http.MethodPost, path: "/orders", token: tok, idemKey: "k", body: orderBody(ring())})
	expect(t, first, http.StatusCreated)
	created := decode[orders.Order](t, first)

	w := api.do(call{method: http.MethodPost, path: "/orders", token: tok, idemKey: "k", body: orderBody(ring())})
	expect(t, w, http.StatusAccepted)
	if got := decode[map[string]string](t, w); got["orderId"] != created.OrderID {
		t.Fatalf("body = %v", got)
	}
}

func TestWeightBasedOrderUsesRecordedRate(t *testing.T) {
	api := newTestAPI(t)
	admin := api.token("admin-1", users.RoleAdmin)
	cust := api.token("cust-1", users.RoleCustomer)

	w := api.do(call{method: http.MethodPost, path: "/orders", token: cust, idemKey: "k0", body: orderBody(chain(10))})
	expect(t, w, http.StatusNotFound)

	w = api.do(call{method: http.MethodPost, path: "/admin/rates", token: admin, body: map[string]any{"goldRate": 6000, "silverRate": 80}})
	expect(t, w, http.StatusCreated)
	rec := decode[rates.Record](t, w)
	if !rec.IsActive || rec.UpdatedBy != "admin-1" {
		t.Fatalf("record = %+v", rec)
	}

	w = api.do(call{method: http.MethodPost, path: "/orders", token: cust, idemKey: "k1", body: orderBody(chain(10))})
	expect(t, w, http.StatusCreated)
	o := decode[orders.Order](t, w)
	it := o.Items[0]
	if it.UnitPrice != 60000 || it.GoldRateAtPurchase == nil || *it.GoldRateAtPurchase != 6000 {
		t.Fatalf("item = %+v", it)
	}

	w = api.do(call{method: http.MethodGet, path: "/admin/rates/history", token: admin})
	expect(t, w, http.StatusOK)
	if got := decode[map[string][]rates.Record](t, w)["items"]; len(got) != 1 {
		t.Fatalf("history = %+v", got)
	}
	expect(t, api.do(call{method: http.MethodPost, path: "/admin/rates", token: cust, body: map[string]any{"goldRate": 1, "silverRate": 1}}), http.StatusForbidden)
}

func TestOrderResponsesCarryDerivedValues(t *testing.T) {
	api := newTestAPI(t)
	admin := api.token("admin-1", users.RoleAdmin)
	cust := api.token("cust-1", users.RoleCustomer)

	expect(t, api.do(call{method: http.MethodPost, path: "/admin/rates", token: admin, body: map[string]any{"goldRate": 6000, "silverRate": 80}}), http.StatusCreated)
	w := api.do(call{method: http.MethodPost, path: "/orders", token: cust, idemKey: "k1", body: orderBody(ring(), chain(10))})
	expect(t, w, http.StatusCreated)

	check := func(name string, v map[string]any) {
		t.Helper()
		billing, _ := v["billingAddress"].(map[string]any)
		if v["totalItems"] != float64(3) || v["totalWeight"] != float64(10) ||
			v["hasGoldItems"] != true || v["hasSilverItems"] != false ||
			v["orderAge"] != float64(0) || billing["city"] != "Bengaluru" {
			t.Fatalf("%s: derived values missing or wrong: %v", name, v)
		}
	}
	created := decode[map[string]any](t, w)
	check("create", created)
	id, _ := created["id"].(string)

	w = api.do(call{method: http.MethodGet, path: "/orders/" + id, token: cust})
	expect(t, w, http.StatusOK)
	check("get", decode[map[string]any](t, w))

	w = api.do(call{method: http.MethodGet, path: "/admin/orders", token: admin})
	expect(t, w, http.StatusOK)
	list := decode[struct {
		Items []map[string]any `json:"items"`
	}](t, w)
	if len(list.Items) != 1 {
		t.Fatalf("list = %+v", list)
	}
	check("admin list", list.Items[0])

	// explicit tax without shipping is rejected rather than replaced by the policy
	body := orderBody(ring())
	body["taxAmount"] = 10
	w = api.do(call{method: http.MethodPost, path: "/orders", token: cust, idemKey: "k2", body: body})
	expect(t, w, http.StatusBadRequest)
	if got := decode[dto.BaseError](t, w); len(got.Fields) != 1 || got.Fields[0].Tag != "charges_pair" {
		t.Fatalf("body = %+v", got)
	}
}

func TestCustomerScope(t *testing.T) {
	api := newTestAPI(t)
	alice := api.token("alice", users.RoleCustomer)
	bob := api.token("bob", users.RoleCustomer)

	mine := api.createOrder(alice, "a1")
	api.createOrder(bob, "b1")

	expect(t, api.do(call{method: http.MethodGet, path: "/orders/" + mine.OrderID, token: alice}), http.StatusOK)
	expect(t, api.do(call{method: http.MethodGet, path: "/orders/" + mine.OrderID, token: bob}), http.StatusNotFound)
	expect(t, api.do(call{method: http.MethodPost, path: "/orders/" + mine.OrderID + "/cancel", token: bob}), http.StatusNotFound)

	w := api.do(call{method: http.MethodGet, path: "/orders?status=all", token: alice})
	expect(t, w, http.StatusOK)
	res := decode[orders.Result](t, w)
	if res.Total != 1 || res.Items[0].OrderID != mine.OrderID || res.Pages != 1 {
		t.Fatalf("result = %+v", res)
	}

	expect(t, api.do(call{method: http.MethodGet, path: "/orders?dateRange=decade", token: alice}), http.StatusBadRequest)
	expect(t, api.do(call{method: http.MethodGet, path: "/admin/orders", token: alice}), http.StatusForbidden)
}

func TestCustomerCancel(t *testing.T) {
	api := newTestAPI(t)
	tok := api.token("cust-1", users.RoleCustomer)
	o := api.createOrder(tok, "k1")

	w := api.do(call{method: http.MethodPost, path: "/orders/" + o.OrderID + "/cancel", token: tok, body: map[string]string{"reason": "changed my mind"}})
	expect(t, w, http.StatusOK)
	got := decode[orders.Order](t, w)
	last := got.StatusHistory[len(got.StatusHistory)-1]
	if got.Status != orders.StatusCancelled || last.Note != "changed my mind" {
		t.Fatalf("order = %+v", got)
	}

	w = api.do(call{method: http.MethodPost, path: "/orders/" + o.OrderID + "/cancel", token: tok})
	expect(t, w, http.StatusConflict)
	if body := decode[dto.BaseError](t, w); body.Code != dto.CodeInvalidMove {
		t.Fatalf("body = %+v", body)
	}
}

func TestAdminOrderRoutes(t *testing.T) {
	api := newTestAPI(t)
	admin := api.token("admin-1", users.RoleAdmin)
	cust := api.token("cust-1", users.RoleCustomer)
	a := api.createOrder(cust, "k1")
	b := api.createOrder(cust, "k2")

	path := func(id, suffix string) string { return "/admin/orders/" + id + suffix }

	w := api.do(call{method: http.MethodPatch, path: path(a.OrderID, "/status"), token: admin, body: map[string]string{"status": "shipped"}})
	expect(t, w, http.StatusConflict)

	w = api.do(call{method: http.MethodPatch, path: path(a.OrderID, "/status"), token: admin, body: map[string]string{"status": "confirmed", "note": "payment verified"}})
	expect(t, w, http.StatusOK)
	if o := decode[orders.Order](t, w); o.Status != orders.StatusConfirmed || len(o.StatusHistory) != 2 || o.StatusHistory[1].UpdatedBy != "admin-1" {
		t.Fatalf("order = %+v", o)
	}

	w = api.do(call{method: http.MethodPost, path: "/admin/orders/bulk-status", token: admin, body: map[string]any{"orderIds": []string{b.OrderID, "missing"}, "status": "confirmed"}})
	expect(t, w, http.StatusNotFound)

	w = api.do(call{method: http.MethodPost, path: "/admin/orders/bulk-status", token: admin, body: map[string]any{"orderIds": []string{a.OrderID, b.OrderID}, "status": "cancelled"}})
	expect(t, w, http.StatusOK)
	if got := decode[map[string]any](t, w); got["updated"] != float64(2) {
		t.Fatalf("bulk = %v", got)
	}

	w = api.do(call{method: http.MethodPatch, path: path(a.OrderID, "/fulfillment"), token: admin, body: map[string]string{"trackingNumber": "TRK1", "shippingCarrier": "BlueDart"}})
	expect(t, w, http.StatusOK)
	expect(t, api.do(call{method: http.MethodPatch, path: path(a.OrderID, "/fulfillment"), token: admin, body: map[string]string{}}), http.StatusBadRequest)

	w = api.do(call{method: http.MethodPatch, path: path(b.OrderID, "/payment"), token: admin, body: map[string]string{"paymentStatus": "failed"}})
	expect(t, w, http.StatusOK)
	w = api.do(call{method: http.MethodPatch, path: path(b.OrderID, "/priority"), token: admin, body: map[string]string{"priority": "urgent"}})
	expect(t, w, http.StatusOK)

	w = api.do(call{method: http.MethodGet, path: "/admin/orders/attention", token: admin})
	expect(t, w, http.StatusOK)
	if res := decode[orders.Result](t, w); res.Total != 1 || res.Items[0].OrderID != b.OrderID {
		t.Fatalf("attention = %+v", res)
	}

	w = api.do(call{method: http.MethodGet, path: "/admin/orders/stats", token: admin})
	expect(t, w, http.StatusOK)
	st := decode[orders.Stats](t, w)
	if st.Total != 2 || st.ByStatus[orders.StatusCancelled] != 2 || st.Revenue != 0 {
		t.Fatalf("stats = %+v", st)
	}

	w = api.do(call{method: http.MethodGet, path: "/admin/orders?status=cancelled&limit=1&page=2", token: admin})
	expect(t, w, http.StatusOK)
	if res := decode[orders.Result](t, w); res.Total != 2 || res.Pages != 2 || len(res.Items) != 1 {
		t.Fatalf("list = %+v", res)
	}
	expect(t, api.do(call{method: http.MethodGet, path: path(a.OrderID, ""), token: admin}), http.StatusOK)
	expect(t, api.do(call{method: http.MethodGet, path: path("missing", ""), token: admin}), http.StatusNotFound)
}

func TestRateSyncWithoutFeed(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(call{method: http.MethodPost, path: "/admin/rates/sync", token: api.token("admin-1", users.RoleAdmin)})
	expect(t, w, http.StatusServiceUnavailable)
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: bad", apperr.ErrValidation), http.StatusBadRequest, dto.CodeValidation},
		{fmt.Errorf("%w: order x", apperr.ErrNotFound), http.StatusNotFound, dto.CodeNotFound},
		{apperr.ErrConflict, http.StatusConflict, dto.CodeConflict},
		{apperr.ErrInvalidTransition, http.StatusConflict, dto.CodeInvalidMove},
		{apperr.ErrDuplicateRequest, http.StatusConflict, dto.CodeDuplicate},
		{apperr.ErrExternalUnavailable, http.StatusServiceUnavailable, dto.CodeUnavailable},
		{errors.New("boom"), http.StatusInternalServerError, dto.CodeInternal},
	}
	for _, tc := range cases {
		status, body := statusOf(tc.err)
		if status != tc.status || body.Code != tc.code {
			t.Errorf("statusOf(%v) = %d %s", tc.err, status, body.Code)
		}
	}
}

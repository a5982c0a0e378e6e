package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/xuri/excelize/v2"

	"sipim/backend/internal/clock"
	"sipim/backend/internal/domain"
	"sipim/backend/internal/service"
	"sipim/backend/internal/store/memory"
)

type testEnv struct {
	api     *API
	handler http.Handler
	repo    *memory.Store
}

// newTestEnv builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := memory.New()
	ctx := context.Background()
	for _, u := range []struct {
		name, email, password, role string
	}{
		{"Owner", "owner@sipim.test", "owner-secret", domain.RoleOwner},
		{"Kasir", "kasir@sipim.test", "kasir-secret", domain.RoleCashier},
	} {
		if _, err := repo.CreateUser(ctx, domain.UserAccount{
			Name:     u.name,
			Email:    u.email,
			Password: mustHashPassword(t, u.password),
			Role:     u.role,
			Active:   true,
		}); err != nil {
			t.Fatalf("seed user %s: %v", u.email, err)
		}
	}

	svc := service.New(repo, nil, clock.Fixed{At: time.Date(2026, time.September, 1, 10, 0, 0, 0, time.UTC)}, false, time.Minute)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)
	api := New(svc, auth, "*")

	return &testEnv{api: api, handler: api.Handler(), repo: repo}
}

func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func (e *testEnv) login(t *testing.T, email string, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d (body: %s)", email, rec.Code, rec.Body.String())
	}

	var body domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return body.AccessToken
}

func (e *testEnv) do(t *testing.T, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch || method == http.MethodDelete {
		req.Header.Set("X-CSRF-Token", e.api.generateCSRFToken())
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seedProduct(t *testing.T, name string, priceCents int64, stock int) domain.Product {
	t.Helper()
	p, err := e.repo.CreateProduct(context.Background(), domain.Product{
		Name: name, Category: "Grocery", PriceCents: priceCents, Stock: stock,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return *p
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t)

	payload, _ := json.Marshal(map[string]string{"email": "owner@sipim.test", "password": "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleLogin_RateLimit(t *testing.T) {
	env := newTestEnv(t)

	payload, _ := json.Marshal(map[string]string{"email": "owner@sipim.test", "password": "wrong"})
	var last int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", last)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestOwnerRoutesRejectCashier(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "kasir@sipim.test", "kasir-secret")

	for _, path := range []string{"/api/v1/users", "/api/v1/dashboard", "/api/v1/suppliers"} {
		rec := env.do(t, http.MethodGet, path, token, nil)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403 for cashier on %s, got %d", path, rec.Code)
		}
	}
}

func TestMutationsRequireCSRFToken(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "owner@sipim.test", "owner-secret")

	payload, _ := json.Marshal(domain.ProductCreateRequest{
		Name: "Roti", Category: "Bakery", PriceCents: 17800, Stock: 10,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d", rec.Code)
	}
}

func TestProductLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "owner@sipim.test", "owner-secret")

	rec := env.do(t, http.MethodPost, "/api/v1/products", token, domain.ProductCreateRequest{
		Name: "Roti Tawar", Category: "Bakery", PriceCents: 17800, Stock: 15,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Product domain.Product `json:"product"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode created product: %v", err)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/products?search=roti&in_stock=true", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var page domain.ProductPage
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatalf("decode product page: %v", err)
	}
	if page.Total != 1 || page.Products[0].ID != created.Product.ID {
		t.Fatalf("expected the created product, got %+v", page)
	}

	newPrice := int64(18500)
	rec = env.do(t, http.MethodPatch, "/api/v1/products/"+created.Product.ID, token, domain.ProductUpdateRequest{PriceCents: &newPrice})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodDelete, "/api/v1/products/"+created.Product.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/products/"+created.Product.ID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestCheckoutOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	product := env.seedProduct(t, "Mie Goreng", 3500, 10)
	token := env.login(t, "kasir@sipim.test", "kasir-secret")

	rec := env.do(t, http.MethodPost, "/api/v1/pos/checkout", token, domain.CheckoutRequest{
		Items: []domain.CartLine{{ProductID: product.ID, Quantity: 2, PriceCents: 3500}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Receipt domain.Receipt `json:"receipt"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if body.Receipt.TotalCents != 7000 || body.Receipt.TransactionID == "" {
		t.Fatalf("unexpected receipt: %+v", body.Receipt)
	}
}

func TestCheckoutShortageReturns422WithDetails(t *testing.T) {
	env := newTestEnv(t)
	product := env.seedProduct(t, "Mie Goreng", 3500, 1)
	token := env.login(t, "kasir@sipim.test", "kasir-secret")

	rec := env.do(t, http.MethodPost, "/api/v1/pos/checkout", token, domain.CheckoutRequest{
		Items: []domain.CartLine{{ProductID: product.ID, Quantity: 5, PriceCents: 3500}},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Error     string `json:"error"`
		Shortages []struct {
			Name      string `json:"name"`
			Available int    `json:"available"`
			Requested int    `json:"requested"`
		} `json:"shortages"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode shortage body: %v", err)
	}
	if len(body.Shortages) != 1 || body.Shortages[0].Available != 1 || body.Shortages[0].Requested != 5 {
		t.Fatalf("unexpected shortages: %+v", body.Shortages)
	}
}

func TestImportUploadOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "owner@sipim.test", "owner-secret")

	f := excelize.NewFile()
	idx, _ := f.NewSheet("Products")
	f.SetActiveSheet(idx)
	_ = f.SetSheetRow("Products", "A1", &[]any{"name", "category", "price", "cost", "stock"})
	_ = f.SetSheetRow("Products", "A2", &[]any{"Mie Goreng", "Grocery", 3500, 2700, 100})
	_ = f.SetSheetRow("Products", "A3", &[]any{"", "Grocery", 2000, 1500, 5})
	workbook, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	part, err := writer.CreateFormFile("file", "import.xlsx")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(workbook.Bytes()); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.WriteField("clear_existing", "false"); err != nil {
		t.Fatalf("write form field: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/settings/import", &form)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", env.api.generateCSRFToken())
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Report domain.ImportReport `json:"report"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if body.Report.ProductsCreated != 1 || len(body.Report.SkippedRows) != 1 {
		t.Fatalf("unexpected report: %+v", body.Report)
	}
}

func TestSpreadsheetDownloadsReturnXLSX(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "owner@sipim.test", "owner-secret")

	for _, path := range []string{"/api/v1/settings/template", "/api/v1/transactions/export"} {
		rec := env.do(t, http.MethodGet, path, token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d (body: %s)", path, rec.Code, rec.Body.String())
		}
		if got := rec.Header().Get("Content-Type"); got != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
			t.Fatalf("%s: unexpected content type %q", path, got)
		}
	}
}

func TestDashboardExportFormats(t *testing.T) {
	env := newTestEnv(t)
	product := env.seedProduct(t, "Mie Goreng", 3500, 10)
	cashierToken := env.login(t, "kasir@sipim.test", "kasir-secret")
	ownerToken := env.login(t, "owner@sipim.test", "owner-secret")

	rec := env.do(t, http.MethodPost, "/api/v1/pos/checkout", cashierToken, domain.CheckoutRequest{
		Items: []domain.CartLine{{ProductID: product.ID, Quantity: 2, PriceCents: 3500}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed checkout: %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/dashboard/export?filter=today&format=csv", ownerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("csv export: expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/csv; charset=utf-8" {
		t.Fatalf("unexpected csv content type %q", got)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("summary,total_revenue_cents,7000")) {
		t.Fatalf("expected revenue line in csv, got %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/v1/dashboard/export?filter=today&format=html", ownerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("html export: expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/html; charset=utf-8" {
		t.Fatalf("unexpected html content type %q", got)
	}
}

func TestUserManagementOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "owner@sipim.test", "owner-secret")

	rec := env.do(t, http.MethodPost, "/api/v1/users", token, domain.UserCreateRequest{
		Name: "Kasir Dua", Email: "kasir2@sipim.test", Password: "rahasia-123", Role: domain.RoleCashier,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create user: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/v1/users", token, domain.UserCreateRequest{
		Name: "Dup", Email: "kasir2@sipim.test", Password: "rahasia-123", Role: domain.RoleCashier,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate email: expected 409, got %d", rec.Code)
	}

	if !bytes.Contains(rec.Body.Bytes(), []byte("error")) {
		t.Fatalf("expected error payload, got %s", rec.Body.String())
	}
}

func TestSettingsRoundTripOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "owner@sipim.test", "owner-secret")

	rec := env.do(t, http.MethodGet, "/api/v1/settings", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get settings: expected 200, got %d", rec.Code)
	}
	var body struct {
		Settings domain.Setting `json:"settings"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode settings: %v", err)
	}

	body.Settings.StoreName = "Toko Baru"
	rec = env.do(t, http.MethodPut, "/api/v1/settings", token, body.Settings)
	if rec.Code != http.StatusOK {
		t.Fatalf("put settings: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

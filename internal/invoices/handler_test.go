package invoices

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kitchenledger/kitchenledger/internal/platform/httpx"
)

type handlerHarness struct {
	*serviceHarness
	router chi.Router
}

func newHandlerHarness(t *testing.T) *handlerHarness {
	t.Helper()
	svc := newServiceHarness(t)
	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc.svc)
	r := chi.NewRouter()
	r.Route("/api/v1/invoices", handler.MountRoutes)
	return &handlerHarness{serviceHarness: svc, router: r}
}

func (h *handlerHarness) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *handlerHarness) createBody(number string) string {
	return `{
		"invoice_number": "` + number + `",
		"supplier_id": "` + h.supplier.ID.String() + `",
		"invoice_date": "2023-01-15",
		"due_date": "2023-02-14",
		"items": [{
			"product_id": "` + h.water.ID.String() + `",
			"unit_id": "` + h.bottle.ID.String() + `",
			"quantity": 10,
			"unit_price": "12.99",
			"discount_percentage": 5,
			"vat_rate": 20
		}]
	}`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHandlerCreateAndShow(t *testing.T) {
	h := newHandlerHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/invoices", h.createBody("INV-12345"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[invoiceResponse](t, rec)

	assert.Equal(t, "/api/v1/invoices/"+created.ID.String(), rec.Header().Get("Location"))
	assert.Equal(t, "129.90", created.Subtotal)
	assert.Equal(t, "6.50", created.TotalDiscount)
	assert.Equal(t, "123.40", created.TotalNet)
	assert.Equal(t, "24.68", created.TotalVAT)
	assert.Equal(t, "148.08", created.TotalGross)
	assert.Equal(t, StatusPending, created.PaymentStatus)
	require.NotNil(t, created.Supplier)
	assert.Equal(t, "Metro Cash & Carry", created.Supplier.Name)

	require.Len(t, created.Items, 1)
	item := created.Items[0]
	assert.Equal(t, "Mineral Water (500ml)", item.ProductName)
	assert.Equal(t, "Mineral Water (500ml)", *item.Description)
	assert.Equal(t, "Bottle", item.UnitName)
	assert.Equal(t, "btl", item.UnitSymbol)
	assert.Equal(t, "148.08", item.GrossAmount)

	rec = h.do(t, http.MethodGet, "/api/v1/invoices/"+created.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	shown := decode[invoiceResponse](t, rec)
	assert.Equal(t, "2023-02-14", shown.DueDate)
	assert.Equal(t, created.TotalGross, shown.TotalGross)
}

func TestHandlerCreateValidation(t *testing.T) {
	h := newHandlerHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/invoices", `{"invoice_date":"15/01/2023","items":[{"quantity":-1}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	problem := decode[httpx.ProblemDetail](t, rec)
	assert.Contains(t, problem.Errors, "invoice_date")
	assert.Contains(t, problem.Errors, "items[0].quantity")
	assert.Contains(t, problem.Errors, "items[0].product_id")
	assert.Contains(t, problem.Errors, "items[0].unit_price")

	body := strings.Replace(h.createBody("INV-1"), `"due_date": "2023-02-14"`, `"due_date": "2023-01-01"`, 1)
	rec = h.do(t, http.MethodPost, "/api/v1/invoices", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	problem = decode[httpx.ProblemDetail](t, rec)
	assert.Equal(t, "must not be before invoice_date", problem.Errors["due_date"])
	assert.Empty(t, h.repo.invoices)

	rec = h.do(t, http.MethodPost, "/api/v1/invoices", `{"invoice_number":"X","unexpected":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerCreateConflicts(t *testing.T) {
	h := newHandlerHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/invoices", h.createBody("INV-1"), "Idempotency-Key", "req-1")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/invoices", h.createBody("INV-1"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/invoices", h.createBody("INV-2"), "Idempotency-Key", "req-1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, h.repo.invoices, 1)
}

func TestHandlerNotFound(t *testing.T) {
	h := newHandlerHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/invoices/7d3c1c1e-58b6-4f55-9f5c-6c7c0ad0a8a1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = h.do(t, http.MethodGet, "/api/v1/invoices/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerBatchMutation(t *testing.T) {
	h := newHandlerHarness(t)
	created := h.create(t, "INV-1", h.waterLine(), h.flourLine())
	water, flour := created.Items[0], created.Items[1]

	body := `{
		"header": {"notes": "checked"},
		"update_items": [{"id": "` + water.ID.String() + `", "discount_percentage": 0}],
		"add_items": [{"product_id": "` + h.flour.ID.String() + `", "unit_id": "` + h.kilogram.ID.String() + `", "quantity": "50", "unit_price": "0.89"}],
		"remove_item_ids": ["` + flour.ID.String() + `"]
	}`
	rec := h.do(t, http.MethodPatch, "/api/v1/invoices/"+created.ID.String(), body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[invoiceResponse](t, rec)

	require.Len(t, resp.Items, 2)
	assert.Equal(t, "checked", *resp.Notes)
	assert.Equal(t, "209.28", resp.TotalGross)

	body = `{"add_items": [{"product_id": "` + h.water.ID.String() + `", "unit_id": "` + h.bottle.ID.String() + `", "quantity": 1, "unit_price": 1, "vat_rate": 120}]}`
	rec = h.do(t, http.MethodPatch, "/api/v1/invoices/"+created.ID.String(), body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	problem := decode[httpx.ProblemDetail](t, rec)
	assert.Contains(t, problem.Errors, "add_items[0].vat_rate")
}

func TestHandlerItemEndpoints(t *testing.T) {
	h := newHandlerHarness(t)
	created := h.create(t, "INV-1", h.waterLine())
	other := h.create(t, "INV-2", h.flourLine())
	base := "/api/v1/invoices/" + created.ID.String()

	body := `{"product_id": "` + h.flour.ID.String() + `", "unit_id": "` + h.kilogram.ID.String() + `", "quantity": 25, "unit_price": 0.89}`
	rec := h.do(t, http.MethodPost, base+"/items", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	added := decode[itemResponse](t, rec)
	assert.Equal(t, "Flour T55", added.ProductName)
	assert.Equal(t, "20.00", added.VATRate)
	assert.Equal(t, "26.70", added.GrossAmount)

	rec = h.do(t, http.MethodPut, base+"/items/"+added.ID.String(), `{"quantity": 50}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "53.40", decode[itemResponse](t, rec).GrossAmount)

	rec = h.do(t, http.MethodGet, base+"/items", "")
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[[]itemResponse](t, rec)
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].Position)
	assert.Equal(t, 2, items[1].Position)

	rec = h.do(t, http.MethodDelete, base+"/items/"+other.Items[0].ID.String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodDelete, base+"/items/"+added.ID.String(), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodGet, base, "")
	assert.Equal(t, "148.08", decode[invoiceResponse](t, rec).TotalGross)
}

func TestHandlerMarkPaidAndDelete(t *testing.T) {
	h := newHandlerHarness(t)
	created := h.create(t, "INV-1", h.waterLine())
	base := "/api/v1/invoices/" + created.ID.String()

	rec := h.do(t, http.MethodPost, base+"/mark-paid", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	paid := decode[invoiceResponse](t, rec)
	assert.Equal(t, StatusPaid, paid.PaymentStatus)
	assert.Equal(t, "2023-02-20", *paid.PaymentDate)

	rec = h.do(t, http.MethodPost, base+"/mark-paid", `{"payment_date":"2023-02-01","payment_reference":"BANK-12345"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	paid = decode[invoiceResponse](t, rec)
	assert.Equal(t, "2023-02-01", *paid.PaymentDate)
	assert.Equal(t, "BANK-12345", *paid.PaymentReference)

	rec = h.do(t, http.MethodDelete, base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "INV-1", decode[invoiceResponse](t, rec).InvoiceNumber)

	rec = h.do(t, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerListAndExport(t *testing.T) {
	h := newHandlerHarness(t)
	h.create(t, "INV-1", h.waterLine())
	paid := h.create(t, "INV-2", h.flourLine())
	_, err := h.svc.MarkPaid(t.Context(), paid.ID, MarkPaidInput{})
	require.NoError(t, err)

	rec := h.do(t, http.MethodGet, "/api/v1/invoices?status=paid", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]invoiceResponse](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "INV-2", list[0].InvoiceNumber)
	assert.Empty(t, list[0].Items)

	rec = h.do(t, http.MethodGet, "/api/v1/invoices?overdue=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]invoiceResponse](t, rec), 1)

	rec = h.do(t, http.MethodGet, "/api/v1/invoices?status=bogus&start_date=yesterday", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	problem := decode[httpx.ProblemDetail](t, rec)
	assert.Contains(t, problem.Errors, "status")
	assert.Contains(t, problem.Errors, "start_date")

	rec = h.do(t, http.MethodGet, "/api/v1/invoices/export.xlsx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	book, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer func() { _ = book.Close() }()
	rows, err := book.GetRows(registerSheet, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "174.78", rows[3][9])
}

func TestHandlerCreateRejectsValuesTheColumnsCannotHold(t *testing.T) {
	h := newHandlerHarness(t)

	body := strings.Replace(h.createBody("INV-1"), `"unit_price": "12.99"`, `"unit_price": "1.005"`, 1)
	rec := h.do(t, http.MethodPost, "/api/v1/invoices", body)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	problem := decode[httpx.ProblemDetail](t, rec)
	assert.Equal(t, "must have at most 2 decimal places", problem.Errors["items[0].unit_price"])

	body = strings.Replace(h.createBody("INV-1"), `"quantity": 10`, `"quantity": "9999999.999"`, 1)
	body = strings.Replace(body, `"unit_price": "12.99"`, `"unit_price": "99999999.99"`, 1)
	rec = h.do(t, http.MethodPost, "/api/v1/invoices", body)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	problem = decode[httpx.ProblemDetail](t, rec)
	assert.Contains(t, problem.Errors, "items[0].subtotal")

	body = strings.Replace(h.createBody("INV-1"), `"quantity": 10`, `"quantity": "10000000"`, 1)
	rec = h.do(t, http.MethodPost, "/api/v1/invoices", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, h.repo.invoices)
}

func TestHandlerCreatedItemsMatchTheirSourceFields(t *testing.T) {
	h := newHandlerHarness(t)

	body := strings.Replace(h.createBody("INV-1"), `"quantity": 10`, `"quantity": "3.125"`, 1)
	body = strings.Replace(body, `"unit_price": "12.99"`, `"unit_price": "1.01"`, 1)
	rec := h.do(t, http.MethodPost, "/api/v1/invoices", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[invoiceResponse](t, rec)

	require.Len(t, created.Items, 1)
	item := created.Items[0]
	want := ComputeAmounts(dec(item.Quantity), dec(item.UnitPrice), dec(item.DiscountPercentage), dec(item.VATRate))
	assert.Equal(t, want.Subtotal.StringFixed(2), item.Subtotal)
	assert.Equal(t, want.GrossAmount.StringFixed(2), item.GrossAmount)
	assert.Equal(t, item.GrossAmount, created.TotalGross)
}

func TestHandlerExportFailureReturnsProblem(t *testing.T) {
	h := newHandlerHarness(t)
	h.create(t, "INV-1", h.waterLine())
	h.repo.failOn = "list_invoices"

	rec := h.do(t, http.MethodGet, "/api/v1/invoices/export.xlsx", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
}

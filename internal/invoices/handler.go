package invoices

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kitchenledger/kitchenledger/internal/platform/httpx"
)

// Handler exposes invoice endpoints as JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *httpx.Validator
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers invoice routes on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/export.xlsx", h.export)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.show)
		r.Put("/", h.updateHeader)
		r.Patch("/", h.mutate)
		r.Delete("/", h.delete)
		r.Post("/mark-paid", h.markPaid)
		r.Get("/items", h.listItems)
		r.Post("/items", h.addItem)
		r.Put("/items/{itemID}", h.updateItem)
		r.Delete("/items/{itemID}", h.removeItem)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	invoices, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		resp = append(resp, newInvoiceResponse(inv))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := h.service.Export(r.Context(), filter, &buf); err != nil {
		h.fail(w, r, fmt.Errorf("export invoices: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="invoices.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("write export", slog.Any("error", err))
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := h.validator.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.Create(r.Context(), CreateInput{
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Header:         req.headerRequest.patch(),
		Items:          newItems(req.Items),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+detail.ID.String())
	httpx.JSON(w, http.StatusCreated, newDetailResponse(detail))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newDetailResponse(detail))
}

func (h *Handler) updateHeader(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	var req headerRequest
	if err := h.validator.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.UpdateHeader(r.Context(), id, req.patch())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newDetailResponse(detail))
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	var req mutateRequest
	if err := h.validator.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.Mutate(r.Context(), id, req.mutation())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newDetailResponse(detail))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	deleted, err := h.service.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newInvoiceResponse(deleted))
}

func (h *Handler) markPaid(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	var req markPaidRequest
	if r.ContentLength != 0 {
		if err := h.validator.Bind(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	detail, err := h.service.MarkPaid(r.Context(), id, MarkPaidInput{
		PaymentDate:      parseDate(req.PaymentDate),
		PaymentReference: req.PaymentReference,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newDetailResponse(detail))
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newItemResponses(detail))
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	var req itemRequest
	if err := h.validator.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.AddItem(r.Context(), id, req.newItem())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondItem(w, r, http.StatusCreated, item)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	itemID, ok := pathUUID(w, r, "itemID", "item_id")
	if !ok {
		return
	}
	var req itemPatchRequest
	if err := h.validator.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.UpdateItem(r.Context(), id, itemID, req.patch())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondItem(w, r, http.StatusOK, item)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	itemID, ok := pathUUID(w, r, "itemID", "item_id")
	if !ok {
		return
	}
	if err := h.service.RemoveItem(r.Context(), id, itemID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondItem enriches a single item with catalog names.
func (h *Handler) respondItem(w http.ResponseWriter, r *http.Request, status int, item Item) {
	products, err := h.service.catalog.Products(r.Context(), []uuid.UUID{item.ProductID})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	units, err := h.service.catalog.Units(r.Context(), []uuid.UUID{item.UnitID})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, status, newItemResponse(item, products, units))
}

func (h *Handler) invoiceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	return pathUUID(w, r, "id", "id")
}

func pathUUID(w http.ResponseWriter, r *http.Request, param, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		httpx.RespondError(w, httpx.FieldErrors{field: "must be a valid UUID"})
		return uuid.Nil, false
	}
	return id, true
}

// fail maps service errors onto problem responses.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.RespondError(w, httpx.FieldErrors(verr.Fields))
	case IsNotFound(err):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateNumber):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		if !errors.Is(err, httpx.ErrConflict) {
			h.logger.Error("invoice request failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	var filter ListFilter
	errs := httpx.FieldErrors{}

	if v := q.Get("supplier_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			errs["supplier_id"] = "must be a valid UUID"
		} else {
			filter.SupplierID = &id
		}
	}
	if v := q.Get("status"); v != "" {
		status := PaymentStatus(v)
		if !status.Valid() {
			errs["status"] = "must be one of: pending partial paid overdue cancelled"
		} else {
			filter.Status = &status
		}
	}
	for _, f := range []struct {
		name string
		dst  **time.Time
	}{{"start_date", &filter.StartDate}, {"end_date", &filter.EndDate}} {
		if v := q.Get(f.name); v != "" {
			if d := parseDate(&v); d != nil {
				*f.dst = d
			} else {
				errs[f.name] = "must be a date formatted as " + dateLayout
			}
		}
	}
	for _, f := range []struct {
		name string
		dst  *bool
	}{{"overdue", &filter.Overdue}, {"due_this_week", &filter.DueThisWeek}} {
		if v := q.Get(f.name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs[f.name] = "must be true or false"
			} else {
				*f.dst = b
			}
		}
	}

	if len(errs) > 0 {
		return ListFilter{}, errs
	}
	return filter, nil
}

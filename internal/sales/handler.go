package sales

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/klyraworks/fulfil/internal/credit"
	"github.com/klyraworks/fulfil/internal/inventory"
	"github.com/klyraworks/fulfil/internal/payments"
	"github.com/klyraworks/fulfil/internal/platform/db"
	"github.com/klyraworks/fulfil/internal/platform/httpx"
	"github.com/klyraworks/fulfil/internal/shared"
)

// actorHeader identifies the acting user for the audit trail.
const actorHeader = "X-Actor-ID"

// retryAfterSeconds is the hint returned with transient lock failures.
const retryAfterSeconds = 2

// Handler manages sale endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers sale routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/sales", func(r chi.Router) {
		r.Post("/", h.createSale)
		r.Get("/", h.listSales)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getSale)
			r.Patch("/", h.updateSale)
			r.Post("/confirm", h.confirmSale)
			r.Post("/invoice", h.invoiceSale)
			r.Post("/void", h.voidSale)
			r.Post("/payments", h.recordPayment)
			r.Get("/payments", h.listPayments)
		})
	})
	r.Post("/payments/{id}/reverse", h.reversePayment)
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "missing tenant", "tenant header required")
		return
	}
	var req CreateSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid body", err.Error())
		return
	}
	sale, err := h.service.CreateSale(r.Context(), tenantID, actorID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) updateSale(w http.ResponseWriter, r *http.Request) {
	tenantID, saleID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req UpdateSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid body", err.Error())
		return
	}
	sale, err := h.service.UpdateSale(r.Context(), tenantID, saleID, actorID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) confirmSale(w http.ResponseWriter, r *http.Request) {
	tenantID, saleID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req ConfirmSaleRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "invalid body", err.Error())
			return
		}
	}
	sale, err := h.service.ConfirmSale(r.Context(), tenantID, saleID, actorID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) invoiceSale(w http.ResponseWriter, r *http.Request) {
	tenantID, saleID, ok := h.scope(w, r)
	if !ok {
		return
	}
	sale, err := h.service.InvoiceSale(r.Context(), tenantID, saleID, actorID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) voidSale(w http.ResponseWriter, r *http.Request) {
	tenantID, saleID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req VoidSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid body", err.Error())
		return
	}
	sale, err := h.service.VoidSale(r.Context(), tenantID, saleID, actorID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	tenantID, saleID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req RecordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid body", err.Error())
		return
	}
	payment, sale, err := h.service.RecordPayment(r.Context(), tenantID, saleID, actorID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"payment": payment, "sale": sale})
}

func (h *Handler) reversePayment(w http.ResponseWriter, r *http.Request) {
	tenantID, paymentID, ok := h.scope(w, r)
	if !ok {
		return
	}
	payment, sale, err := h.service.ReversePayment(r.Context(), tenantID, paymentID, actorID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payment": payment, "sale": sale})
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	tenantID, saleID, ok := h.scope(w, r)
	if !ok {
		return
	}
	sale, err := h.service.GetSale(r.Context(), tenantID, saleID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "missing tenant", "tenant header required")
		return
	}
	req := ListSalesRequest{State: State(r.URL.Query().Get("state"))}
	if v := r.URL.Query().Get("customer_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "invalid customer_id", err.Error())
			return
		}
		req.CustomerID = &id
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "invalid limit", err.Error())
			return
		}
		req.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "invalid offset", err.Error())
			return
		}
		req.Offset = n
	}

	sales, total, err := h.service.ListSales(r.Context(), tenantID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sales": sales, "total": total})
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	tenantID, saleID, ok := h.scope(w, r)
	if !ok {
		return
	}
	list, err := h.service.ListPayments(r.Context(), tenantID, saleID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": list})
}

// scope extracts the tenant and the {id} path parameter.
func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "missing tenant", "tenant header required")
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid id", err.Error())
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, id, true
}

func actorID(r *http.Request) uuid.UUID {
	id, err := uuid.Parse(r.Header.Get(actorHeader))
	if err != nil {
		return uuid.Nil
	}
	return id
}

// writeError maps domain errors onto the HTTP taxonomy. Business
// rejections are 409, bad input 400, transient lock trouble 503.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr     *shared.ValidationError
		conflict *StateConflictError
		noStock  *inventory.InsufficientStockError
		noCredit *credit.InsufficientCreditError
		overpaid *payments.OverpaymentError
	)
	switch {
	case errors.As(err, &verr):
		httpx.Problem(w, http.StatusBadRequest, "validation failed", verr.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, payments.ErrPaymentNotFound),
		errors.Is(err, credit.ErrCustomerNotFound):
		httpx.Problem(w, http.StatusNotFound, "not found", err.Error())
	case errors.As(err, &conflict):
		httpx.Problem(w, http.StatusConflict, "state conflict", conflict.Error())
	case errors.Is(err, ErrVoidBlocked):
		httpx.Problem(w, http.StatusConflict, "void blocked", "invoice is authorized, use a credit note")
	case errors.As(err, &noStock):
		httpx.Problem(w, http.StatusConflict, "insufficient stock", noStock.Error())
	case errors.As(err, &noCredit):
		httpx.Problem(w, http.StatusConflict, "insufficient credit", noCredit.Error())
	case errors.As(err, &overpaid):
		httpx.Problem(w, http.StatusConflict, "overpayment", overpaid.Error())
	case errors.Is(err, payments.ErrAlreadyReversed), errors.Is(err, payments.ErrSaleMismatch),
		errors.Is(err, payments.ErrInvalidAmount):
		httpx.Problem(w, http.StatusConflict, "payment rejected", err.Error())
	case errors.Is(err, db.ErrLockTimeout), errors.Is(err, shared.ErrLockNotAcquired):
		httpx.Retryable(w, retryAfterSeconds, "busy", "operation contended, retry shortly")
	default:
		h.logger.Error("sale request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "internal error", "unexpected failure")
	}
}

package recon

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ledgerkite/ledgerkite/internal/billing"
	"github.com/ledgerkite/ledgerkite/internal/platform/httpx"
	"github.com/ledgerkite/ledgerkite/internal/shared"
)

// Handler wires HTTP endpoints for batch reconciliation and delta export.
type Handler struct {
	logger    *slog.Logger
	engine    *Engine
	exporter  *Exporter
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, engine *Engine, exporter *Exporter) *Handler {
	return &Handler{logger: logger, engine: engine, exporter: exporter, validator: validator.New()}
}

// MountRoutes registers reconciliation routes under a tenant-scoped router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/customers", h.applyCustomers)
	r.Post("/vendors", h.applyVendors)
	r.Post("/items", h.applyItems)
	r.Post("/invoices", h.applyInvoices)
	r.Post("/lines", h.applyLines)
	r.Post("/payments", h.applyPayments)

	r.Get("/delta/customers", h.deltaCustomers)
	r.Get("/delta/vendors", h.deltaVendors)
	r.Get("/delta/items", h.deltaItems)
	r.Get("/delta/invoices", h.deltaInvoices)
	r.Get("/delta/lines", h.deltaLines)
	r.Get("/delta/payments", h.deltaPayments)
}

type customerBatchRequest struct {
	BatchID string           `json:"batch_id" validate:"required,max=120"`
	Records []RemoteCustomer `json:"records" validate:"required"`
}

type vendorBatchRequest struct {
	BatchID string         `json:"batch_id" validate:"required,max=120"`
	Records []RemoteVendor `json:"records" validate:"required"`
}

type itemBatchRequest struct {
	BatchID string       `json:"batch_id" validate:"required,max=120"`
	Records []RemoteItem `json:"records" validate:"required"`
}

type invoiceBatchRequest struct {
	BatchID string                  `json:"batch_id" validate:"required,max=120"`
	Records []billing.RemoteInvoice `json:"records" validate:"required"`
}

type lineBatchRequest struct {
	BatchID string               `json:"batch_id" validate:"required,max=120"`
	Records []billing.RemoteLine `json:"records" validate:"required"`
}

type paymentBatchRequest struct {
	BatchID string                  `json:"batch_id" validate:"required,max=120"`
	Records []billing.RemotePayment `json:"records" validate:"required"`
}

func (h *Handler) applyCustomers(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.UUIDParam(r, "tenantID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req customerBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.engine.ApplyRemoteCustomers(r.Context(), shared.ActorFromContext(r.Context()), tenantID, req.BatchID, req.Records)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) applyVendors(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.UUIDParam(r, "tenantID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req vendorBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.engine.ApplyRemoteVendors(r.Context(), shared.ActorFromContext(r.Context()), tenantID, req.BatchID, req.Records)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) applyItems(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.UUIDParam(r, "tenantID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req itemBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.engine.ApplyRemoteItems(r.Context(), shared.ActorFromContext(r.Context()), tenantID, req.BatchID, req.Records)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) applyInvoices(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.UUIDParam(r, "tenantID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req invoiceBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.engine.ApplyRemoteInvoices(r.Context(), shared.ActorFromContext(r.Context()), tenantID, req.BatchID, req.Records)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) applyLines(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.UUIDParam(r, "tenantID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req lineBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.engine.ApplyRemoteLines(r.Context(), shared.ActorFromContext(r.Context()), tenantID, req.BatchID, req.Records)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) applyPayments(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.UUIDParam(r, "tenantID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req paymentBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.engine.ApplyRemotePayments(r.Context(), shared.ActorFromContext(r.Context()), tenantID, req.BatchID, req.Records)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

// deltaParams reads the tenant scope and the exclusive since boundary. The
// zero tenant UUID requests a global export, gated downstream to super
// admins.
func deltaParams(r *http.Request) (uuid.UUID, time.Time, error) {
	tenantID, err := httpx.UUIDParam(r, "tenantID")
	if err != nil {
		return uuid.Nil, time.Time{}, err
	}
	since, err := httpx.QueryTime(r, "since")
	if err != nil {
		return uuid.Nil, time.Time{}, err
	}
	return tenantID, since, nil
}

func (h *Handler) deltaCustomers(w http.ResponseWriter, r *http.Request) {
	tenantID, since, err := deltaParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.exporter.CustomersUpdatedSince(r.Context(), shared.ActorFromContext(r.Context()), tenantID, since)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) deltaVendors(w http.ResponseWriter, r *http.Request) {
	tenantID, since, err := deltaParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.exporter.VendorsUpdatedSince(r.Context(), shared.ActorFromContext(r.Context()), tenantID, since)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) deltaItems(w http.ResponseWriter, r *http.Request) {
	tenantID, since, err := deltaParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.exporter.ItemsUpdatedSince(r.Context(), shared.ActorFromContext(r.Context()), tenantID, since)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) deltaInvoices(w http.ResponseWriter, r *http.Request) {
	tenantID, since, err := deltaParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.exporter.InvoicesUpdatedSince(r.Context(), shared.ActorFromContext(r.Context()), tenantID, since)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) deltaLines(w http.ResponseWriter, r *http.Request) {
	tenantID, since, err := deltaParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.exporter.LinesUpdatedSince(r.Context(), shared.ActorFromContext(r.Context()), tenantID, since)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) deltaPayments(w http.ResponseWriter, r *http.Request) {
	tenantID, since, err := deltaParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.exporter.PaymentsUpdatedSince(r.Context(), shared.ActorFromContext(r.Context()), tenantID, since)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

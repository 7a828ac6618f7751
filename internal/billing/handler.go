package billing

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ledgerkite/ledgerkite/internal/platform/httpx"
	"github.com/ledgerkite/ledgerkite/internal/shared"
)

// Handler wires HTTP endpoints for invoices, lines and payments.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers billing routes under a tenant-scoped router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Post("/", h.createInvoice)
		r.Get("/", h.listInvoices)
		r.Get("/unsynced", h.unsyncedInvoices)
		r.Post("/mark-synced", h.markInvoicesSynced)
		r.Get("/{invoiceID}", h.getInvoice)
		r.Patch("/{invoiceID}", h.updateInvoice)
		r.Delete("/{invoiceID}", h.removeInvoice)
		r.Get("/{invoiceID}/lines", h.listLines)
		r.Post("/{invoiceID}/lines", h.addLine)
		r.Get("/{invoiceID}/payments", h.listPayments)
	})
	r.Route("/lines", func(r chi.Router) {
		r.Get("/unsynced", h.unsyncedLines)
		r.Post("/mark-synced", h.markLinesSynced)
		r.Patch("/{lineID}", h.updateLine)
		r.Delete("/{lineID}", h.removeLine)
	})
	r.Route("/payments", func(r chi.Router) {
		r.Post("/", h.addPayment)
		r.Get("/unsynced", h.unsyncedPayments)
		r.Post("/mark-synced", h.markPaymentsSynced)
		r.Patch("/{paymentID}", h.updatePayment)
		r.Delete("/{paymentID}", h.removePayment)
	})
}

type markSyncedRequest struct {
	IDs []uuid.UUID `json:"ids" validate:"required,min=1"`
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.UUIDParam(r, "tenantID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CreateInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	req.TenantID = tenantID
	if err := httpx.Validate(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	invoice, err := h.service.CreateInvoice(r.Context(), shared.ActorFromContext(r.Context()), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.UUIDParam(r, "tenantID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	req := ListInvoicesRequest{
		TenantID: tenantID,
		Search:   r.URL.Query().Get("search"),
		Status:   r.URL.Query().Get("status"),
		Page:     httpx.QueryInt(r, "page", 1),
		PerPage:  httpx.QueryInt(r, "per_page", 20),
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, meta, err := h.service.ListInvoices(r.Context(), shared.ActorFromContext(r.Context()), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Listing{Data: list, Pagination: meta})
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.UUIDParam(r, "tenantID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.UUIDParam(r, "invoiceID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	invoice, err := h.service.GetInvoice(r.Context(), shared.ActorFromContext(r.Context()), tenantID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) updateInvoice(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.UUIDParam(r, "tenantID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.UUIDParam(r, "invoiceID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	invoice, err := h.service.UpdateInvoice(r.Context(), shared.ActorFromContext(r.Context()), tenantID, id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) removeInvoice(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.UUIDParam(r, "tenantID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.UUIDParam(r, "invoiceID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	invoice, err := h.service.DeleteInvoice(r.Context(), shared.ActorFromContext(r.Context()), tenantID, id, httpx.QueryBool(r, "force"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) listLines(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.UUIDParam(r, "tenantID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	invoiceID, err := httpx.UUIDParam(r, "invoiceID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	lines, err := h.service.ListLines(r.Context(), shared.ActorFromContext(r.Context()), tenantID, invoiceID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lines)
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.UUIDParam(r, "tenantID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	invoiceID, err := httpx.UUIDParam(r, "invoiceID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CreateLineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	line, err := h.service.AddLine(r.Context(), shared.ActorFromContext(r.Context()), tenantID, invoiceID, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, line)
}

func (h *Handler) updateLine(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.UUIDParam(r, "tenantID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	lineID, err := httpx.UUIDParam(r, "lineID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateLineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	line, err := h.service.UpdateLine(r.Context(), shared.ActorFromContext(r.Context()), tenantID, lineID, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) removeLine(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.UUIDParam(r, "tenantID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	lineID, err := httpx.UUIDParam(r, "lineID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	line, err := h.service.DeleteLine(r.Context(), shared.ActorFromContext(r.Context()), tenantID, lineID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.UUIDParam(r, "tenantID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	invoiceID, err := httpx.UUIDParam(r, "invoiceID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payments, err := h.service.ListPayments(r.Context(), shared.ActorFromContext(r.Context()), tenantID, invoiceID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payments)
}

func (h *Handler) addPayment(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.UUIDParam(r, "tenantID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CreatePaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	payment, err := h.service.AddPayment(r.Context(), shared.ActorFromContext(r.Context()), tenantID, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) updatePayment(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.UUIDParam(r, "tenantID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	paymentID, err := httpx.UUIDParam(r, "paymentID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdatePaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	payment, err := h.service.UpdatePayment(r.Context(), shared.ActorFromContext(r.Context()), tenantID, paymentID, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) removePayment(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.UUIDParam(r, "tenantID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	paymentID, err := httpx.UUIDParam(r, "paymentID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payment, err := h.service.DeletePayment(r.Context(), shared.ActorFromContext(r.Context()), tenantID, paymentID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) unsyncedInvoices(w http.ResponseWriter, r *http.Request) {
	h.unsynced(w, r, func(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, limit int) (any, error) {
		return h.service.GetUnsyncedInvoices(ctx, actor, tenantID, limit)
	})
}

func (h *Handler) unsyncedLines(w http.ResponseWriter, r *http.Request) {
	h.unsynced(w, r, func(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, limit int) (any, error) {
		return h.service.GetUnsyncedLines(ctx, actor, tenantID, limit)
	})
}

func (h *Handler) unsyncedPayments(w http.ResponseWriter, r *http.Request) {
	h.unsynced(w, r, func(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, limit int) (any, error) {
		return h.service.GetUnsyncedPayments(ctx, actor, tenantID, limit)
	})
}

func (h *Handler) unsynced(w http.ResponseWriter, r *http.Request, fetch func(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, limit int) (any, error)) {
	tenantID, err := httpx.UUIDParam(r, "tenantID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := fetch(r.Context(), shared.ActorFromContext(r.Context()), tenantID, httpx.QueryInt(r, "limit", 100))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) markInvoicesSynced(w http.ResponseWriter, r *http.Request) {
	h.markSynced(w, r, h.service.MarkInvoicesSynced)
}

func (h *Handler) markLinesSynced(w http.ResponseWriter, r *http.Request) {
	h.markSynced(w, r, h.service.MarkLinesSynced)
}

func (h *Handler) markPaymentsSynced(w http.ResponseWriter, r *http.Request) {
	h.markSynced(w, r, h.service.MarkPaymentsSynced)
}

func (h *Handler) markSynced(w http.ResponseWriter, r *http.Request, mark func(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, ids []uuid.UUID) (int, error)) {
	tenantID, err := httpx.UUIDParam(r, "tenantID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req markSyncedRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	updated, err := mark(r.Context(), shared.ActorFromContext(r.Context()), tenantID, req.IDs)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"updated": updated})
}

package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service,Archiver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"visitorbook/internal/archive"
	"visitorbook/internal/platform/metrics"
	"visitorbook/internal/platform/middleware"
	"visitorbook/internal/visitorbook/models"
	"visitorbook/pkg/domain"
	dErrors "visitorbook/pkg/domain-errors"
	"visitorbook/pkg/platform/httputil"
	"visitorbook/pkg/requestcontext"
)

// Service is the registry as seen through its host.
type Service interface {
	Initialize(ctx context.Context, caller common.Address) error
	Sign(ctx context.Context, call models.CallContext, message string) error
	TotalVisitors(ctx context.Context) (uint64, error)
	VisitorAt(ctx context.Context, index *uint256.Int) (common.Address, error)
	HasVisited(ctx context.Context, addr common.Address) (bool, error)
	Fee(ctx context.Context) (*uint256.Int, error)
	BalanceOf(ctx context.Context, addr common.Address) (*uint256.Int, error)
	Mint(ctx context.Context, to common.Address, amount *uint256.Int) error
}

// Archiver writes registry snapshots.
type Archiver interface {
	Export(ctx context.Context) (archive.Result, error)
}

// Handler serves the registry API.
type Handler struct {
	service   Service
	archiver  Archiver
	validator middleware.CallerValidator
	owner     *common.Address
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New creates a registry Handler. owner gates the admin routes; nil disables them.
func New(
	service Service,
	archiver Archiver,
	validator middleware.CallerValidator,
	owner *common.Address,
	logger *slog.Logger,
	metrics *metrics.Metrics) *Handler {
	return &Handler{
		service:   service,
		archiver:  archiver,
		validator: validator,
		owner:     owner,
		logger:    logger,
		metrics:   metrics,
	}
}

// Register registers the registry routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.RequestTime)
		r.Use(middleware.Logger(h.logger))
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.LatencyMiddleware(h.metrics))

		r.Get("/fee", h.handleFee)
		r.Get("/visitors/count", h.handleTotalVisitors)
		r.Get("/visitors/{index}", h.handleVisitorAt)
		r.Get("/addresses/{address}/visited", h.handleHasVisited)
		r.Get("/accounts/{address}/balance", h.handleBalance)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireCaller(h.validator, h.logger))
			r.Post("/initialize", h.handleInitialize)
			r.Post("/visits", h.handleSign)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireOwner(h.owner, h.logger))
				r.Post("/accounts/{address}/mint", h.handleMint)
				r.Post("/snapshots", h.handleSnapshot)
			})
		})
	})
}

func (h *Handler) handleInitialize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	if err := h.service.Initialize(ctx, caller); err != nil {
		h.logFailure(ctx, "initialize failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "registry initialized",
		"request_id", requestID,
		"caller", caller.Hex(),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SignRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	call := models.CallContext{Caller: caller, Value: req.payment}
	if err := h.service.Sign(ctx, call, req.Message); err != nil {
		h.logFailure(ctx, "sign failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTotalVisitors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	total, err := h.service.TotalVisitors(ctx)
	if err != nil {
		h.logFailure(ctx, "count visitors failed", middleware.GetRequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TotalVisitorsResponse{TotalVisitors: total})
}

func (h *Handler) handleVisitorAt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	index, err := domain.ParseIndex(chi.URLParam(r, "index"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	visitor, err := h.service.VisitorAt(ctx, index)
	if err != nil {
		h.logFailure(ctx, "visitor lookup failed", middleware.GetRequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, VisitorResponse{
		Index:   domain.FormatAmount(index),
		Visitor: visitor.Hex(),
	})
}

func (h *Handler) handleHasVisited(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	visited, err := h.service.HasVisited(ctx, addr)
	if err != nil {
		h.logFailure(ctx, "visited lookup failed", middleware.GetRequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, VisitedResponse{Address: addr.Hex(), Visited: visited})
}

func (h *Handler) handleFee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fee, err := h.service.Fee(ctx)
	if err != nil {
		h.logFailure(ctx, "fee lookup failed", middleware.GetRequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FeeResponse{Fee: domain.FormatAmount(fee)})
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	balance, err := h.service.BalanceOf(ctx, addr)
	if err != nil {
		h.logFailure(ctx, "balance lookup failed", middleware.GetRequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BalanceResponse{Address: addr.Hex(), Balance: domain.FormatAmount(balance)})
}

func (h *Handler) handleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[MintRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.service.Mint(ctx, addr, req.amount); err != nil {
		h.logFailure(ctx, "mint failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "account minted",
		"request_id", requestID,
		"address", addr.Hex(),
		"amount", domain.FormatAmount(req.amount),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	if h.archiver == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "archiving is not configured"))
		return
	}
	res, err := h.archiver.Export(ctx)
	if err != nil {
		h.logFailure(ctx, "snapshot failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, SnapshotResponse{Key: res.Key, TotalVisitors: res.TotalVisitors})
}

// caller returns the authenticated caller. RequireCaller guarantees one.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	caller, ok := requestcontext.Caller(r.Context())
	if !ok {
		h.logger.ErrorContext(r.Context(), "caller missing from context despite auth middleware",
			"request_id", middleware.GetRequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return common.Address{}, false
	}
	return caller, true
}

// logFailure logs rejections at warn and faults at error.
func (h *Handler) logFailure(ctx context.Context, msg, requestID string, err error) {
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestID,
			"error", err,
		)
		return
	}
	h.logger.WarnContext(ctx, msg,
		"request_id", requestID,
		"error", err,
	)
}

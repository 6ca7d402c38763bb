package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"vouchsafe/internal/custody/models"
	"vouchsafe/internal/platform/metrics"
	"vouchsafe/internal/platform/middleware"
	"vouchsafe/internal/transport/http/shared"
	"vouchsafe/pkg/domain"
	dErrors "vouchsafe/pkg/domain-errors"
	"vouchsafe/pkg/requestcontext"
)

// Service defines the custody operations the transport layer delegates to.
type Service interface {
	CreateManager(ctx context.Context) (*models.Manager, error)
	RegisterUser(ctx context.Context, managerID domain.ManagerID, name string) (*models.User, error)
	IssueVoucher(ctx context.Context, managerID domain.ManagerID, description string, value domain.Amount) (*models.Voucher, error)
	FundManager(ctx context.Context, managerID domain.ManagerID, amount domain.Amount) (*models.Manager, error)
	AddAdmin(ctx context.Context, managerID domain.ManagerID, addr domain.Address) (*models.Manager, error)
	RedeemVoucher(ctx context.Context, managerID domain.ManagerID, userID domain.UserID, voucherID domain.VoucherID) (*models.Manager, error)
	StakeTokens(ctx context.Context, managerID domain.ManagerID, userID domain.UserID, amount domain.Amount) (*models.User, error)
	GetManager(ctx context.Context, managerID domain.ManagerID) (*models.Manager, error)
	GetUser(ctx context.Context, managerID domain.ManagerID, userID domain.UserID) (*models.User, error)
	GetVoucher(ctx context.Context, managerID domain.ManagerID, voucherID domain.VoucherID) (*models.Voucher, error)
}

// Handler handles the custody endpoints.
type Handler struct {
	logger    *slog.Logger
	custody   Service
	metrics   *metrics.Metrics
	validator middleware.TokenValidator
	operator  *middleware.OperatorKey
}

// New creates a new custody Handler.
func New(
	custody Service,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	validator middleware.TokenValidator,
	operator *middleware.OperatorKey) *Handler {
	return &Handler{
		logger:    logger,
		custody:   custody,
		metrics:   metrics,
		validator: validator,
		operator:  operator,
	}
}

// Register registers the custody routes with the chi router. Administrative
// routes require an authenticated caller; redemption, staking, and reads are
// open since authorization for them lives in the ledger itself.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.ContentTypeJSON)
	router.Use(middleware.Latency(h.metrics))

	router.Group(func(gated chi.Router) {
		gated.Use(middleware.RequireAuth(h.validator, h.operator, h.logger))
		gated.Post("/managers", h.handleCreateManager)
		gated.Post("/managers/{managerID}/users", h.handleRegisterUser)
		gated.Post("/managers/{managerID}/vouchers", h.handleIssueVoucher)
		gated.Post("/managers/{managerID}/fund", h.handleFund)
		gated.Post("/managers/{managerID}/admins", h.handleAddAdmin)
	})

	router.Group(func(open chi.Router) {
		open.Post("/managers/{managerID}/redeem", h.handleRedeem)
		open.Post("/managers/{managerID}/stake", h.handleStake)
		open.Get("/managers/{managerID}", h.handleGetManager)
		open.Get("/managers/{managerID}/users/{userID}", h.handleGetUser)
		open.Get("/managers/{managerID}/vouchers/{voucherID}", h.handleGetVoucher)
	})

	r.Mount("/", router)
}

func (h *Handler) handleCreateManager(w http.ResponseWriter, r *http.Request) {
	manager, err := h.custody.CreateManager(r.Context())
	if err != nil {
		h.writeFailure(r.Context(), w, "create manager", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, manager)
}

func (h *Handler) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	managerID, ok := h.managerID(w, r)
	if !ok {
		return
	}

	var req registerUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	user, err := h.custody.RegisterUser(r.Context(), managerID, req.Name)
	if err != nil {
		h.writeFailure(r.Context(), w, "register user", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleIssueVoucher(w http.ResponseWriter, r *http.Request) {
	managerID, ok := h.managerID(w, r)
	if !ok {
		return
	}

	var req issueVoucherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	voucher, err := h.custody.IssueVoucher(r.Context(), managerID, req.Description, req.Value)
	if err != nil {
		h.writeFailure(r.Context(), w, "issue voucher", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, voucher)
}

func (h *Handler) handleFund(w http.ResponseWriter, r *http.Request) {
	managerID, ok := h.managerID(w, r)
	if !ok {
		return
	}

	var req fundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	manager, err := h.custody.FundManager(r.Context(), managerID, req.Amount)
	if err != nil {
		h.writeFailure(r.Context(), w, "fund manager", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, manager)
}

func (h *Handler) handleAddAdmin(w http.ResponseWriter, r *http.Request) {
	managerID, ok := h.managerID(w, r)
	if !ok {
		return
	}

	var req addAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Address.IsZero() {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "address is required"))
		return
	}

	manager, err := h.custody.AddAdmin(r.Context(), managerID, req.Address)
	if err != nil {
		h.writeFailure(r.Context(), w, "add admin", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, manager)
}

func (h *Handler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	managerID, ok := h.managerID(w, r)
	if !ok {
		return
	}

	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	manager, err := h.custody.RedeemVoucher(r.Context(), managerID, req.UserID, req.VoucherID)
	if err != nil {
		h.writeFailure(r.Context(), w, "redeem voucher", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, manager)
}

func (h *Handler) handleStake(w http.ResponseWriter, r *http.Request) {
	managerID, ok := h.managerID(w, r)
	if !ok {
		return
	}

	var req stakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	user, err := h.custody.StakeTokens(r.Context(), managerID, req.UserID, req.Amount)
	if err != nil {
		h.writeFailure(r.Context(), w, "stake tokens", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) handleGetManager(w http.ResponseWriter, r *http.Request) {
	managerID, ok := h.managerID(w, r)
	if !ok {
		return
	}

	manager, err := h.custody.GetManager(r.Context(), managerID)
	if err != nil {
		h.writeFailure(r.Context(), w, "get manager", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, manager)
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	managerID, ok := h.managerID(w, r)
	if !ok {
		return
	}
	userID, ok := parseIndex(w, r, "userID")
	if !ok {
		return
	}

	user, err := h.custody.GetUser(r.Context(), managerID, domain.UserID(userID))
	if err != nil {
		h.writeFailure(r.Context(), w, "get user", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) handleGetVoucher(w http.ResponseWriter, r *http.Request) {
	managerID, ok := h.managerID(w, r)
	if !ok {
		return
	}
	voucherID, ok := parseIndex(w, r, "voucherID")
	if !ok {
		return
	}

	voucher, err := h.custody.GetVoucher(r.Context(), managerID, domain.VoucherID(voucherID))
	if err != nil {
		h.writeFailure(r.Context(), w, "get voucher", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, voucher)
}

// managerID extracts and parses the manager id path parameter. On failure it
// writes the error response and returns ok=false.
func (h *Handler) managerID(w http.ResponseWriter, r *http.Request) (domain.ManagerID, bool) {
	id, err := domain.ParseManagerID(chi.URLParam(r, "managerID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid manager id"))
		return domain.ManagerID{}, false
	}
	return id, true
}

func parseIndex(w http.ResponseWriter, r *http.Request, param string) (uint64, bool) {
	n, err := strconv.ParseUint(chi.URLParam(r, param), 10, 64)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid "+param))
		return 0, false
	}
	return n, true
}

// writeFailure logs a failed operation and writes its error envelope.
// Expected domain failures log at warn, everything else at error.
func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	requestID := requestcontext.RequestID(ctx)

	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "operation failed",
			"operation", operation,
			"request_id", requestID,
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "internal error"))
		return
	}

	h.logger.WarnContext(ctx, "operation rejected",
		"operation", operation,
		"request_id", requestID,
		"error", err.Error(),
	)
	shared.WriteError(w, err)
}

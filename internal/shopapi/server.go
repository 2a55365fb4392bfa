package shopapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/creditbook/internal/notify"
	"github.com/MarkoPoloResearchLab/creditbook/pkg/ledger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Ledger is the subset of ledger.Service the HTTP API drives.
type Ledger interface {
	CreateAccount(ctx context.Context, name string, contact string, rawCreditLimit string) (ledger.Account, error)
	DeleteAccount(ctx context.Context, rawCustomerID string) error
	Account(rawCustomerID string) (ledger.Account, error)
	Find(query string) iter.Seq[ledger.Account]
	RecordTransaction(ctx context.Context, rawCustomerID string, direction ledger.Direction, rawAmount string, memo string, confirmation ledger.Confirmation) (ledger.Receipt, error)
	ReverseTransaction(ctx context.Context, rawCustomerID string, rawTransactionID string) (ledger.Receipt, error)
	Dashboard(today time.Time) ledger.Dashboard
	DefaultCreditLimit() ledger.Money
}

// Server is the shop-facing HTTP API.
type Server struct {
	cfg     Config
	handler *httpHandler
	router  *gin.Engine
}

// NewServer validates cfg and builds the router. A nil gatherer leaves /metrics unregistered.
func NewServer(cfg Config, service Ledger, logger *zap.Logger, gatherer prometheus.Gatherer) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if service == nil {
		return nil, fmt.Errorf("ledger service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := &httpHandler{
		logger:   logger,
		service:  service,
		sessions: newSessionManager(cfg),
		composer: notify.NewComposer(cfg.ShopName, cfg.CountryCode),
		location: cfg.Location,
		now:      time.Now,
	}
	return &Server{cfg: cfg, handler: handler, router: setupRouter(cfg, handler, gatherer)}, nil
}

// Handler exposes the router, mainly for tests.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              server.cfg.ListenAddr,
		Handler:           server.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		server.handler.logger.Info("shop api listening", zap.String("addr", server.cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.cfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.handler.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler, gatherer prometheus.Gatherer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	router.POST("/api/session", handler.handleUnlock)
	router.DELETE("/api/session", handler.handleLock)

	api := router.Group("/api")
	api.Use(handler.sessions.middleware())
	api.GET("/customers", handler.handleListCustomers)
	api.POST("/customers", handler.handleCreateCustomer)
	api.GET("/customers/:customerID", handler.handleGetCustomer)
	api.DELETE("/customers/:customerID", handler.handleDeleteCustomer)
	api.POST("/customers/:customerID/transactions", handler.handleRecordTransaction)
	api.DELETE("/customers/:customerID/transactions/:transactionID", handler.handleReverseTransaction)
	api.GET("/dashboard", handler.handleDashboard)

	return router
}

type httpHandler struct {
	logger   *zap.Logger
	service  Ledger
	sessions *sessionManager
	composer notify.Composer
	location *time.Location
	now      func() time.Time
}

func (handler *httpHandler) handleUnlock(ctx *gin.Context) {
	var request unlockRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body with pin"))
		return
	}
	if !handler.sessions.pinMatches(request.PIN) {
		ctx.JSON(http.StatusUnauthorized, errorResponse("invalid_pin", "incorrect PIN"))
		return
	}
	expiresAt, err := handler.sessions.issue(ctx)
	if err != nil {
		handler.logger.Error("session signing failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal", "session unavailable"))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"expires": expiresAt.Unix()})
}

func (handler *httpHandler) handleLock(ctx *gin.Context) {
	handler.sessions.clear(ctx)
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleListCustomers(ctx *gin.Context) {
	defaultLimit := handler.service.DefaultCreditLimit()
	customers := []customerPayload{}
	for account := range handler.service.Find(ctx.Query("q")) {
		customers = append(customers, newCustomerPayload(account, defaultLimit, false))
	}
	ctx.JSON(http.StatusOK, gin.H{"customers": customers})
}

func (handler *httpHandler) handleCreateCustomer(ctx *gin.Context) {
	var request createCustomerRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	account, err := handler.service.CreateAccount(ctx.Request.Context(), request.Name, request.Contact, string(request.CreditLimit))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"customer": newCustomerPayload(account, handler.service.DefaultCreditLimit(), true)})
}

func (handler *httpHandler) handleGetCustomer(ctx *gin.Context) {
	account, err := handler.service.Account(ctx.Param("customerID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"customer": newCustomerPayload(account, handler.service.DefaultCreditLimit(), true)})
}

func (handler *httpHandler) handleDeleteCustomer(ctx *gin.Context) {
	if err := handler.service.DeleteAccount(ctx.Request.Context(), ctx.Param("customerID")); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleRecordTransaction(ctx *gin.Context) {
	var request transactionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	direction, err := ledger.ParseDirection(request.Direction)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	receipt, err := handler.service.RecordTransaction(
		ctx.Request.Context(),
		ctx.Param("customerID"),
		direction,
		string(request.Amount),
		request.Memo,
		ledger.Confirmation(request.Confirm),
	)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, handler.newReceiptPayload(receipt))
}

func (handler *httpHandler) handleReverseTransaction(ctx *gin.Context) {
	receipt, err := handler.service.ReverseTransaction(ctx.Request.Context(), ctx.Param("customerID"), ctx.Param("transactionID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, handler.newReceiptPayload(receipt))
}

func (handler *httpHandler) handleDashboard(ctx *gin.Context) {
	today := handler.now().In(handler.location)
	dashboard := handler.service.Dashboard(today)
	ctx.JSON(http.StatusOK, dashboardPayload{
		Date:              today.Format(time.DateOnly),
		TotalOutstanding:  dashboard.TotalOutstanding,
		TodaysCollections: dashboard.TodaysCollections,
		CustomerCount:     dashboard.CustomerCount,
		OverLimitCount:    dashboard.OverLimitCount,
	})
}

func (handler *httpHandler) newReceiptPayload(receipt ledger.Receipt) receiptPayload {
	payload := receiptPayload{
		Customer:    newCustomerPayload(receipt.Account, handler.service.DefaultCreditLimit(), false),
		Transaction: newTransactionPayload(receipt.Transaction),
		Message:     handler.composer.Message(receipt.Notification),
	}
	if link, ok := handler.composer.Link(receipt.Notification); ok {
		payload.WhatsAppLink = link
	}
	return payload
}

// respondError maps ledger error kinds onto HTTP statuses.
func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	var limitError *ledger.LimitExceededError
	if errors.As(err, &limitError) {
		response := errorResponse(string(ledger.KindLimitExceeded), "credit limit exceeded; resend with confirm to proceed")
		response["limit_exceeded"] = limitPayload{
			Limit:            limitError.Limit,
			CurrentBalance:   limitError.CurrentBalance,
			ProjectedBalance: limitError.ProjectedBalance,
		}
		ctx.JSON(http.StatusConflict, response)
		return
	}
	kind := ledger.Kind(err)
	switch kind {
	case ledger.KindValidation:
		ctx.JSON(http.StatusBadRequest, errorResponse(string(kind), err.Error()))
	case ledger.KindNotFound:
		ctx.JSON(http.StatusNotFound, errorResponse(string(kind), err.Error()))
	case ledger.KindPersistence:
		handler.logger.Error("ledger persistence failed", zap.Error(err))
		ctx.JSON(http.StatusServiceUnavailable, errorResponse(string(kind), "changes could not be saved"))
	default:
		handler.logger.Error("ledger operation failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse(string(ledger.KindInternal), "internal error"))
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// flexibleAmount accepts an amount as a JSON string or number.
type flexibleAmount string

func (amount *flexibleAmount) UnmarshalJSON(raw []byte) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "null" {
		*amount = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return err
		}
		*amount = flexibleAmount(text)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(raw, &number); err != nil {
		return err
	}
	*amount = flexibleAmount(number.String())
	return nil
}

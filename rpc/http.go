// Package rpc exposes the lending engine over a JSON-RPC 2.0 endpoint with
// health and metrics routes alongside.
package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lendex/market"
	"lendex/observability"
	"lendex/oracle"
	"lendex/tiers"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	authTokenEnv    = "LENDEX_RPC_TOKEN"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeNotFound       = -32004
	codeServerError    = -32000
)

var (
	errNoOracle = errors.New("oracle not configured")
	errNoTiers  = errors.New("tier table not configured")
)

// Server routes JSON-RPC calls onto the lending engine and its operator
// facilities.
type Server struct {
	engine  *market.Engine
	oracle  *oracle.Manual
	tiers   *tiers.Static
	log     *slog.Logger
	metrics *observability.LendingMetrics

	authToken string
}

// NewServer wires a server over the engine. The bearer token guarding
// operator methods is read from the LENDEX_RPC_TOKEN environment variable.
func NewServer(engine *market.Engine, priceOracle *oracle.Manual, tierTable *tiers.Static, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:    engine,
		oracle:    priceOracle,
		tiers:     tierTable,
		log:       logger,
		metrics:   observability.Metrics(),
		authToken: strings.TrimSpace(os.Getenv(authTokenEnv)),
	}
}

// Router assembles the HTTP mux: the RPC endpoint at /, a liveness probe and
// the prometheus scrape route.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Post("/", s.handle)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// logRequests records every HTTP exchange with its status and duration.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start))
	})
}

// Start serves the router on addr until the listener fails.
func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", "addr", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle parses a single JSON-RPC request and dispatches it.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	start := time.Now()
	handlerErr := s.dispatch(w, r, req)
	s.metrics.ObserveRequest(req.Method, handlerErr, time.Since(start))
	if handlerErr != nil {
		s.log.Warn("rpc request failed", "method", req.Method, "err", handlerErr)
	}
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) error {
	switch req.Method {
	case "lend_getMarket":
		return s.handleGetMarket(w, r, req)
	case "lend_getLoan":
		return s.handleGetLoan(w, r, req)
	case "lend_getDeposit":
		return s.handleGetDeposit(w, r, req)
	case "lend_getBalance":
		return s.handleGetBalance(w, r, req)
	case "lend_getCollateral":
		return s.handleGetCollateral(w, r, req)
	case "lend_deposit":
		return s.handleDeposit(w, r, req)
	case "lend_withdraw":
		return s.handleWithdraw(w, r, req)
	case "lend_borrow":
		return s.handleBorrow(w, r, req)
	case "lend_repay":
		return s.handleRepay(w, r, req)
	case "lend_withdrawCollateral":
		return s.handleWithdrawCollateral(w, r, req)
	case "lend_liquidate":
		return s.handleLiquidate(w, r, req)
	case "lend_buyout":
		return s.handleBuyout(w, r, req)
	case "lend_registerCollateral":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return errors.New(authErr.Message)
		}
		return s.handleRegisterCollateral(w, r, req)
	case "lend_deregisterCollateral":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return errors.New(authErr.Message)
		}
		return s.handleDeregisterCollateral(w, r, req)
	case "lend_setRateParams":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return errors.New(authErr.Message)
		}
		return s.handleSetRateParams(w, r, req)
	case "lend_setRiskParams":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return errors.New(authErr.Message)
		}
		return s.handleSetRiskParams(w, r, req)
	case "lend_setActive":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return errors.New(authErr.Message)
		}
		return s.handleSetActive(w, r, req)
	case "lend_withdrawFees":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return errors.New(authErr.Message)
		}
		return s.handleWithdrawFees(w, r, req)
	case "lend_withdrawPremiumFees":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return errors.New(authErr.Message)
		}
		return s.handleWithdrawPremiumFees(w, r, req)
	case "lend_snapshot":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return errors.New(authErr.Message)
		}
		return s.handleSnapshot(w, r, req)
	case "lend_restore":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return errors.New(authErr.Message)
		}
		return s.handleRestore(w, r, req)
	case "lend_setPrice":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return errors.New(authErr.Message)
		}
		return s.handleSetPrice(w, r, req)
	case "lend_setTier":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return errors.New(authErr.Message)
		}
		return s.handleSetTier(w, r, req)
	}
	writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	return fmt.Errorf("unknown method %s", req.Method)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

// writeEngineError maps engine sentinels onto JSON-RPC error codes and
// reports the failure to the caller.
func (s *Server) writeEngineError(w http.ResponseWriter, req *RPCRequest, err error) error {
	status, code := http.StatusBadRequest, codeServerError
	switch {
	case errors.Is(err, market.ErrUnauthorized):
		status, code = http.StatusForbidden, codeUnauthorized
	case errors.Is(err, market.ErrNilMarket),
		errors.Is(err, market.ErrLoanNotFound),
		errors.Is(err, market.ErrDepositNotFound),
		errors.Is(err, market.ErrCollateralUnknown):
		status, code = http.StatusNotFound, codeNotFound
	case errors.Is(err, market.ErrInvalidAmount),
		errors.Is(err, market.ErrInvalidDecimals),
		errors.Is(err, market.ErrInvalidSnapshot):
		status, code = http.StatusBadRequest, codeInvalidParams
	}
	writeError(w, status, req.ID, code, err.Error(), nil)
	return err
}

func (s *Server) writeInvalidParams(w http.ResponseWriter, req *RPCRequest, message string, data interface{}) error {
	writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, message, data)
	return errors.New(message)
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected a single parameter object")
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return fmt.Errorf("invalid parameter object: %w", err)
	}
	return nil
}

func parseAmount(field, value string) (uint64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("%s required", field)
	}
	amount, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an unsigned integer", field)
	}
	return amount, nil
}

func u64s(v uint64) string { return strconv.FormatUint(v, 10) }

// syncGauges mirrors market aggregates into prometheus after a mutation.
func (s *Server) syncGauges() {
	m, err := s.engine.MarketView()
	if err != nil || m == nil {
		return
	}
	s.metrics.SetMarketGauges(m.TotalDeposits, m.TotalBorrows, m.CirculatingShares, m.FeePool, m.ActiveLoanCount, m.LastAprBps)
}

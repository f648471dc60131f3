package server

import (
	"MarginLedger/internal/event"
	"MarginLedger/internal/ingestion"
	"MarginLedger/internal/observability"
	"MarginLedger/internal/persistence"
	"MarginLedger/internal/projection"
	"MarginLedger/internal/query"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GRPCServer wraps the gRPC server (health + reflection) and the HTTP/JSON
// API mux. The JSON API is served directly on a gateway ServeMux so the
// endpoints share path-template routing with any future generated handlers.
type GRPCServer struct {
	grpcServer    *grpc.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	deps          *ServerDeps
	healthChecker *observability.HealthChecker
}

// ServerDeps holds all dependencies needed by the API handlers.
type ServerDeps struct {
	DB            *sql.DB
	QueryService  *query.QueryService
	StateQuery    *query.StateQuery
	IngestService *ingestion.GRPCIngestService
	SnapshotMgr   *persistence.SnapshotManager
	Projections   *projection.ProjectionWorker
	StartTime     time.Time
	HealthChecker *observability.HealthChecker
}

// NewGRPCServer creates the server with health and reflection registered.
func NewGRPCServer(grpcAddr, httpAddr string, deps *ServerDeps) *GRPCServer {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	return &GRPCServer{
		grpcServer:    grpcServer,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		deps:          deps,
		healthChecker: deps.HealthChecker,
	}
}

// StartGRPC starts the gRPC server (blocking).
func (s *GRPCServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		log.Println("INFO: gRPC server shutting down...")
		s.grpcServer.GracefulStop()
	}()

	log.Printf("INFO: gRPC server listening on %s", s.grpcAddr)
	return s.grpcServer.Serve(lis)
}

// StartHTTP starts the HTTP/JSON API server (blocking).
func (s *GRPCServer) StartHTTP(ctx context.Context) error {
	mux := runtime.NewServeMux()
	if err := s.registerRoutes(mux); err != nil {
		return fmt.Errorf("register routes: %w", err)
	}

	httpMux := http.NewServeMux()
	if s.healthChecker != nil {
		httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	} else {
		httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, `{"status":"ok"}`)
		})
	}
	httpMux.Handle("/", mux)

	s.httpServer = &http.Server{
		Addr:    s.httpAddr,
		Handler: httpMux,
	}

	go func() {
		<-ctx.Done()
		log.Println("INFO: HTTP API shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("INFO: HTTP API listening on %s", s.httpAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *GRPCServer) registerRoutes(mux *runtime.ServeMux) error {
	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{"GET", "/v1/accounts/{account}/position", s.handleGetPosition},
		{"GET", "/v1/accounts/{account}/balances", s.handleGetBalances},
		{"GET", "/v1/accounts/{account}/balances/projected", s.handleGetProjectedBalances},
		{"GET", "/v1/accounts/{account}/solvency", s.handleGetSolvency},
		{"GET", "/v1/accounts/{account}/entries", s.handleGetEntries},
		{"GET", "/v1/accounts/{account}/liquidations", s.handleGetLiquidations},
		{"GET", "/v1/assets", s.handleListAssets},
		{"GET", "/v1/assets/{asset}/funding", s.handleGetAssetFunding},
		{"GET", "/v1/assets/{asset}/accruals", s.handleGetAssetAccruals},
		{"POST", "/v1/admin/deposits", s.handleInjectDeposit},
		{"POST", "/v1/admin/withdrawals", s.handleInjectWithdrawal},
		{"POST", "/v1/admin/batches", s.handleInjectBatch},
		{"POST", "/v1/admin/prices", s.handleInjectPrice},
		{"POST", "/v1/admin/accrual", s.handleInjectAccrual},
		{"POST", "/v1/admin/liquidations", s.handleInjectLiquidation},
		{"POST", "/v1/admin/freeze", s.handleInjectFreeze},
		{"POST", "/v1/admin/projections/rebuild", s.handleRebuildProjections},
		{"GET", "/v1/admin/integrity", s.handleVerifyIntegrity},
		{"GET", "/v1/admin/eventlog", s.handleEventLogInfo},
	}

	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.handler); err != nil {
			return fmt.Errorf("%s %s: %w", r.method, r.pattern, err)
		}
	}
	return nil
}

// --- Query handlers ---

func (s *GRPCServer) handleGetPosition(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	acct, err := uuid.Parse(pathParams["account"])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid account: %w", err))
		return
	}

	pos, err := s.deps.StateQuery.GetPosition(acct)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func (s *GRPCServer) handleGetSolvency(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	acct, err := uuid.Parse(pathParams["account"])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid account: %w", err))
		return
	}

	resp, err := s.deps.StateQuery.GetSolvency(acct)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *GRPCServer) handleGetBalances(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	acct, err := uuid.Parse(pathParams["account"])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid account: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"balances": s.deps.StateQuery.GetBalances(acct),
	})
}

func (s *GRPCServer) handleGetProjectedBalances(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	acct, err := uuid.Parse(pathParams["account"])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid account: %w", err))
		return
	}

	balances, err := s.deps.QueryService.GetProjectedBalances(r.Context(), acct)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"balances": balances})
}

func (s *GRPCServer) handleGetEntries(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	acct, err := uuid.Parse(pathParams["account"])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid account: %w", err))
		return
	}

	limit := queryInt(r, "limit", 100, 500)
	var before *int64
	if v := r.URL.Query().Get("before"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid before cursor: %w", err))
			return
		}
		before = &n
	}

	entries, err := s.deps.QueryService.GetEntryHistory(r.Context(), acct, limit, before)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *GRPCServer) handleGetLiquidations(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	acct, err := uuid.Parse(pathParams["account"])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid account: %w", err))
		return
	}

	limit := queryInt(r, "limit", 50, 200)
	legs, err := s.deps.QueryService.GetLiquidationHistory(r.Context(), acct, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"liquidations": legs})
}

func (s *GRPCServer) handleListAssets(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"assets": s.deps.StateQuery.ListAssets(),
	})
}

func (s *GRPCServer) handleGetAssetFunding(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	resp, err := s.deps.StateQuery.GetAssetFunding(pathParams["asset"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *GRPCServer) handleGetAssetAccruals(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	code, err := s.deps.StateQuery.ResolveAsset(pathParams["asset"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	limit := queryInt(r, "limit", 100, 1000)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accruals": s.deps.Projections.RecentAccruals(code, limit),
	})
}

// --- Admin ingest handlers ---

type transferRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  int64  `json:"amount"`
}

func (s *GRPCServer) handleInjectDeposit(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var req transferRequest
	acct, ok := decodeAccountRequest(w, r, &req, func() string { return req.Account })
	if !ok {
		return
	}

	if err := s.deps.IngestService.InjectDeposit(r.Context(), acct, req.Asset, req.Amount); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (s *GRPCServer) handleInjectWithdrawal(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var req transferRequest
	acct, ok := decodeAccountRequest(w, r, &req, func() string { return req.Account })
	if !ok {
		return
	}

	if err := s.deps.IngestService.InjectWithdrawal(r.Context(), acct, req.Asset, req.Amount); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (s *GRPCServer) handleInjectBatch(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var req struct {
		Ops []struct {
			Kind      string `json:"kind"`
			Account   string `json:"account"`
			ToAccount string `json:"to_account,omitempty"`
			Asset     string `json:"asset"`
			Amount    int64  `json:"amount"`
		} `json:"ops"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}

	ops := make([]event.BatchOp, 0, len(req.Ops))
	for i, op := range req.Ops {
		acct, err := uuid.Parse(op.Account)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("ops[%d].account: %w", i, err))
			return
		}
		parsed := event.BatchOp{Kind: op.Kind, Account: acct, Asset: op.Asset, Amount: op.Amount}
		if op.Kind == event.BatchOpTransfer {
			to, err := uuid.Parse(op.ToAccount)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("ops[%d].to_account: %w", i, err))
				return
			}
			parsed.ToAccount = to
		}
		ops = append(ops, parsed)
	}

	if err := s.deps.IngestService.InjectBatch(r.Context(), ops); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (s *GRPCServer) handleInjectPrice(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var req struct {
		Asset         string `json:"asset"`
		Price         int64  `json:"price"`
		PriceSequence int64  `json:"price_sequence"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}

	if err := s.deps.IngestService.InjectPrice(r.Context(), req.Asset, req.Price, req.PriceSequence); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (s *GRPCServer) handleInjectAccrual(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var req struct {
		SweepSeq int64 `json:"sweep_seq"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}

	if err := s.deps.IngestService.InjectAccrualSweep(r.Context(), req.SweepSeq); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (s *GRPCServer) handleInjectLiquidation(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var req struct {
		Account string `json:"account"`
	}
	acct, ok := decodeAccountRequest(w, r, &req, func() string { return req.Account })
	if !ok {
		return
	}

	if err := s.deps.IngestService.InjectLiquidation(r.Context(), acct); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (s *GRPCServer) handleInjectFreeze(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var req struct {
		Account string `json:"account"`
		Frozen  bool   `json:"frozen"`
	}
	acct, ok := decodeAccountRequest(w, r, &req, func() string { return req.Account })
	if !ok {
		return
	}

	if err := s.deps.IngestService.InjectFreeze(r.Context(), acct, req.Frozen); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

// --- Admin maintenance handlers ---

func (s *GRPCServer) handleRebuildProjections(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	if err := projection.RebuildProjections(r.Context(), s.deps.DB); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"rebuilt": true})
}

func (s *GRPCServer) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	report, err := s.deps.QueryService.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *GRPCServer) handleEventLogInfo(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	latestSeq, err := s.deps.SnapshotMgr.GetLatestSequence(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"last_sequence": latestSeq,
		"uptime":        time.Since(s.deps.StartTime).String(),
	})
}

// --- Helpers ---

// decodeAccountRequest decodes the body into req, then parses the account
// field returned by accountOf. Writes the error response on failure.
func decodeAccountRequest(w http.ResponseWriter, r *http.Request, req interface{}, accountOf func() string) (uuid.UUID, bool) {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return uuid.Nil, false
	}
	acct, err := uuid.Parse(accountOf())
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid account: %w", err))
		return uuid.Nil, false
	}
	return acct, true
}

func queryInt(r *http.Request, key string, def, max int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > max {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

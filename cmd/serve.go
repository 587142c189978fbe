package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/leads"
	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/store"
)

const (
	shutdownTimeout = 30 * time.Second
	maxBodyBytes    = 1 << 20
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           newRouter(env.Service, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// leadService is the part of leads.Service the API uses.
type leadService interface {
	Process(ctx context.Context, lead model.Lead) (*model.EnrichmentResult, error)
	Get(ctx context.Context, profileURL string) (*model.LeadRecord, error)
	List(ctx context.Context, filter store.ListFilter) ([]model.LeadRecord, error)
}

// processRequest is the POST /process_lead body.
type processRequest struct {
	ProfileURL string `json:"profile_url"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Title      string `json:"title"`
	Company    string `json:"company"`
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
}

func newRouter(svc leadService, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "API is running"})
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/process_lead", handleProcessLead(svc))
	r.Get("/leads", handleListLeads(svc))
	r.Get("/lead", handleGetLead(svc))

	return r
}

func handleProcessLead(svc leadService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req processRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "invalid request body"})
			return
		}

		result, err := svc.Process(r.Context(), model.Lead{
			ProfileURL: req.ProfileURL,
			FirstName:  req.FirstName,
			LastName:   req.LastName,
			Title:      req.Title,
			Company:    req.Company,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleListLeads(svc leadService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.ListFilter{Company: q.Get("company")}
		var err error
		if filter.Limit, err = intParam(q.Get("limit")); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "limit must be a non-negative integer"})
			return
		}
		if filter.Offset, err = intParam(q.Get("offset")); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "offset must be a non-negative integer"})
			return
		}

		recs, err := svc.List(r.Context(), filter)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if recs == nil {
			recs = []model.LeadRecord{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"leads": recs})
	}
}

func handleGetLead(svc leadService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url := r.URL.Query().Get("profile_url")
		if url == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_input", Message: "profile_url is required"})
			return
		}
		rec, err := svc.Get(r.Context(), url)
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "lead not found"})
			return
		}
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// writeServiceError maps leads errors to status codes: invalid input is
// 400, a duplicate is 409 and everything else is 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalid *leads.InvalidInputError
		dup     *leads.DuplicateLeadError
		pe      *leads.PipelineError
	)
	switch {
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_input", Message: invalid.Error()})
	case errors.As(err, &dup):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "duplicate_lead", Message: "Lead already processed"})
	case errors.As(err, &pe):
		zap.L().Error("process lead failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("stage", string(pe.Stage)),
			zap.Error(pe.Err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   pe.Code(),
			Message: pe.Err.Error(),
			Stage:   string(pe.Stage),
		})
	default:
		zap.L().Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "store_error", Message: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid integer %q", s)
	}
	return n, nil
}

// requestLogger logs one line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

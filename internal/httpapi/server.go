package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/example/aal-logistics/api-go/internal/invoices"
	"github.com/example/aal-logistics/api-go/internal/jobs"
	"github.com/example/aal-logistics/api-go/internal/metrics"
	"github.com/example/aal-logistics/api-go/internal/migrator"
	"github.com/example/aal-logistics/api-go/internal/model"
	"github.com/example/aal-logistics/api-go/internal/reports"
)

type Server struct {
	Jobs     *jobs.Service
	Invoices *invoices.Composer
	Migrator *migrator.Migrator
	Reports  *reports.Archive // optional, archives migration reports
	Log      logrus.FieldLogger
}

func (s Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(metrics.InstrumentHandler)
	r.Use(cors)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/clients", s.handleCreateClient)
		r.Get("/clients/{id}", s.handleGetClient)

		r.Post("/jobs", s.handleCreateJob)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Get("/job-numbers/next", s.handleNextJobNumber)
		r.Post("/migrations/job-types", s.handleMigrateJobTypes)
		r.Get("/migrations/reports/{name}", s.handleGetMigrationReport)

		r.Post("/invoices", s.handleCreateInvoice)
		r.Get("/invoices/{id}", s.handleGetInvoice)
		r.Patch("/invoices/{id}", s.handleUpdateInvoice)
	})

	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var in model.Client
	if err := decode(r, &in); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	c, err := s.Jobs.CreateClient(r.Context(), model.Client{Name: in.Name, Email: in.Email})
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	c, err := s.Jobs.GetClient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var in jobs.NewJob
	if err := decode(r, &in); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	job, err := s.Jobs.Create(r.Context(), in)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var filter model.JobFilter
	if raw := strings.TrimSpace(r.URL.Query().Get("jobType")); raw != "" {
		jt, err := model.ParseJobType(raw)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		filter.JobType = &jt
	}
	filter.ClientID = strings.TrimSpace(r.URL.Query().Get("clientId"))

	filter.Limit = 25
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %s", raw))
			return
		}
		if value > 100 {
			value = 100
		}
		filter.Limit = value
	}

	list, err := s.Jobs.List(r.Context(), filter)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s Server) handleNextJobNumber(w http.ResponseWriter, r *http.Request) {
	jt, err := model.ParseJobType(strings.TrimSpace(r.URL.Query().Get("jobType")))
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	year := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("year")); raw != "" {
		year, err = strconv.Atoi(raw)
		if err != nil || year < 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid year: %s", raw))
			return
		}
	}
	n, err := s.Jobs.NextNumber(r.Context(), jt, year)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobType": jt, "jobNumber": n.String()})
}

func (s Server) handleMigrateJobTypes(w http.ResponseWriter, r *http.Request) {
	report, err := s.Migrator.MigrateAll(r.Context())
	if s.Reports != nil {
		if key, saveErr := s.Reports.Save(migrationReportKind, report.StartedAt, report); saveErr != nil {
			s.logger().WithError(saveErr).Warn("archive migration report")
		} else {
			s.logger().WithField("report", key).Info("migration report archived")
			w.Header().Set("Location", "/v1/migrations/reports/"+filepath.Base(key))
		}
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error(), "report": report})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

const migrationReportKind = "migration"

func (s Server) handleGetMigrationReport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	clean := filepath.Base(filepath.Clean(name))
	if s.Reports == nil || clean != name || filepath.Ext(clean) != ".json" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("report not found"))
		return
	}
	key := filepath.Join(migrationReportKind, clean)
	if !s.Reports.Exists(key) {
		writeErr(w, http.StatusNotFound, fmt.Errorf("report not found"))
		return
	}
	f, err := s.Reports.Open(key)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}

func (s Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var in model.NewInvoice
	if err := decode(r, &in); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	inv, err := s.Invoices.CreateInvoice(r.Context(), in)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (s Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := s.Invoices.GetInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// updateInvoiceRequest distinguishes an omitted lineItems key (keep the
// items) from an empty array (remove them all).
type updateInvoiceRequest struct {
	model.InvoicePatch
	LineItems *[]model.LineItemInput `json:"lineItems"`
}

func (s Server) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	var in updateInvoiceRequest
	if err := decode(r, &in); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	inv, err := s.Invoices.UpdateInvoice(r.Context(), chi.URLParam(r, "id"), in.InvoicePatch, in.LineItems)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s Server) logger() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case model.Retryable(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"error": err.Error()})
}

func writeDomainErr(w http.ResponseWriter, err error) {
	writeErr(w, statusFor(err), err)
}

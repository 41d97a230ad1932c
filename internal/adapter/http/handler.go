package http

import (
	"context"
	"net/http"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/neomorfeo/rollcall/internal/app"
)

// Everything under JobsPrefix requires a service credential.
const (
	JobsPrefix = "/api/v1/jobs"
	JobsPath   = JobsPrefix + "/critical-evaluation"
)

// JobRunner runs one evaluation across all tenants.
type JobRunner interface {
	Run(ctx context.Context) (app.Report, error)
}

// TenantResultResponse is one tenant's entry in the run summary.
type TenantResultResponse struct {
	TenantID       string `json:"tenantId" doc:"Tenant ID"`
	PlayersUpdated int    `json:"playersUpdated" doc:"Critical flags changed in this run"`
	Notified       int    `json:"notified" doc:"Notifications delivered"`
	Error          string `json:"error,omitempty" doc:"Why the tenant was aborted"`
}

// RunResponse is the API representation of a run report.
type RunResponse struct {
	Success          bool                   `json:"success"`
	RunID            string                 `json:"runId" doc:"Correlates log lines of this run"`
	TenantsProcessed int                    `json:"tenantsProcessed"`
	Results          []TenantResultResponse `json:"results"`
}

func toRunResponse(r app.Report) RunResponse {
	results := make([]TenantResultResponse, len(r.Results))
	for i, res := range r.Results {
		results[i] = TenantResultResponse{
			TenantID:       res.TenantID,
			PlayersUpdated: res.PlayersUpdated,
			Notified:       res.Notified,
		}
		if res.Err != nil {
			results[i].Error = res.Err.Error()
		}
	}
	return RunResponse{
		Success:          true,
		RunID:            r.RunID,
		TenantsProcessed: r.TenantsProcessed,
		Results:          results,
	}
}

// --- Run evaluation ---

type RunInput struct{}

type RunOutput struct {
	Body RunResponse
}

// --- Health ---

type HealthOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// errorFormat guards huma.NewError, a process-wide hook shared by every API.
var errorFormat sync.Once

// NewAPI creates the Huma API on router. The first call installs the
// {"success": false, "error": "..."} error body for the whole process.
func NewAPI(router chi.Router) huma.API {
	errorFormat.Do(func() { huma.NewError = newJobError })

	cfg := huma.DefaultConfig("rollcall", "0.1.0")
	if cfg.Components.SecuritySchemes == nil {
		cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	cfg.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT or static service token",
	}

	return humachi.New(router, cfg)
}

// Register adds the trigger and health routes to the Huma API.
func Register(api huma.API, runner JobRunner) {
	run := func(ctx context.Context, _ *RunInput) (*RunOutput, error) {
		report, err := runner.Run(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("critical evaluation failed", err)
		}
		return &RunOutput{Body: toRunResponse(report)}, nil
	}

	// Schedulers differ in the method they use.
	for _, op := range []struct{ id, method string }{
		{"run-critical-evaluation", http.MethodPost},
		{"run-critical-evaluation-get", http.MethodGet},
	} {
		huma.Register(api, huma.Operation{
			OperationID: op.id,
			Method:      op.method,
			Path:        JobsPath,
			Summary:     "Evaluate critical rules for every tenant",
			Tags:        []string{"Jobs"},
			Security:    []map[string][]string{{"bearerAuth": {}}},
		}, run)
	}

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/api/v1/health",
		Summary:     "Health check",
		Tags:        []string{"Health"},
	}, func(_ context.Context, _ *struct{}) (*HealthOutput, error) {
		out := &HealthOutput{}
		out.Body.Status = "ok"
		return out, nil
	})
}

// jobError is the error body returned by every operation.
type jobError struct {
	status  int
	Success bool   `json:"success"`
	Message string `json:"error"`
}

func (e *jobError) Error() string  { return e.Message }
func (e *jobError) GetStatus() int { return e.status }

func newJobError(status int, msg string, errs ...error) huma.StatusError {
	if msg == "" {
		msg = http.StatusText(status)
	}
	for _, err := range errs {
		if err != nil {
			msg += ": " + err.Error()
		}
	}
	return &jobError{status: status, Message: msg}
}

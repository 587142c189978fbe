package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-enricher/internal/capability"
	"github.com/sells-group/lead-enricher/internal/leads"
	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/pipeline"
	"github.com/sells-group/lead-enricher/internal/store"
)

type fakeService struct {
	process func(ctx context.Context, lead model.Lead) (*model.EnrichmentResult, error)
	get     func(ctx context.Context, profileURL string) (*model.LeadRecord, error)
	list    func(ctx context.Context, filter store.ListFilter) ([]model.LeadRecord, error)
}

func (f *fakeService) Process(ctx context.Context, lead model.Lead) (*model.EnrichmentResult, error) {
	return f.process(ctx, lead)
}

func (f *fakeService) Get(ctx context.Context, profileURL string) (*model.LeadRecord, error) {
	return f.get(ctx, profileURL)
}

func (f *fakeService) List(ctx context.Context, filter store.ListFilter) ([]model.LeadRecord, error) {
	return f.list(ctx, filter)
}

func serve(t *testing.T, svc leadService, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	newRouter(svc, []string{"*"}).ServeHTTP(rr, req)

	var out map[string]any
	if rr.Body.Len() > 0 {
		_ = json.Unmarshal(rr.Body.Bytes(), &out)
	}
	return rr, out
}

func TestRootAndHealth(t *testing.T) {
	rr, body := serve(t, &fakeService{}, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "API is running", body["status"])

	rr, body = serve(t, &fakeService{}, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "ok", body["status"])
}

func TestProcessLead_Success(t *testing.T) {
	var got model.Lead
	svc := &fakeService{process: func(_ context.Context, lead model.Lead) (*model.EnrichmentResult, error) {
		got = lead
		return &model.EnrichmentResult{
			Lead:                lead,
			PersonalizedMessage: "Hi Jane",
			IsNewLead:           true,
		}, nil
	}}

	rr, body := serve(t, svc, http.MethodPost, "/process_lead",
		`{"profile_url":"https://example.com/in/jane","first_name":"Jane","company":"ExampleCo"}`)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://example.com/in/jane", got.ProfileURL)
	assert.Equal(t, "ExampleCo", got.Company)
	assert.Equal(t, true, body["is_new_lead"])
	assert.Equal(t, "Hi Jane", body["personalized_message"])
	assert.Equal(t, "https://example.com/in/jane", body["profile_url"])
}

func TestProcessLead_InvalidBody(t *testing.T) {
	called := false
	svc := &fakeService{process: func(context.Context, model.Lead) (*model.EnrichmentResult, error) {
		called = true
		return nil, nil
	}}

	rr, body := serve(t, svc, http.MethodPost, "/process_lead", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_request", body["error"])
	assert.False(t, called)
}

func TestProcessLead_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  int
		wantError string
		wantStage string
	}{
		{
			name:      "invalid input",
			err:       &leads.InvalidInputError{Field: "profile_url", Reason: "is required"},
			wantCode:  http.StatusBadRequest,
			wantError: "invalid_input",
		},
		{
			name:      "duplicate",
			err:       &leads.DuplicateLeadError{ProfileURL: "https://example.com/in/jane"},
			wantCode:  http.StatusConflict,
			wantError: "duplicate_lead",
		},
		{
			name: "capability timeout",
			err: &leads.PipelineError{
				Stage: pipeline.StateAnalyzing,
				Err:   &capability.Error{Kind: capability.KindTimeout, Task: "analysis"},
			},
			wantCode:  http.StatusInternalServerError,
			wantError: "timeout",
			wantStage: "analyzing",
		},
		{
			name:      "pipeline",
			err:       &leads.PipelineError{Stage: pipeline.StateWriting, Err: errors.New("boom")},
			wantCode:  http.StatusInternalServerError,
			wantError: "pipeline_error",
			wantStage: "writing",
		},
		{
			name:      "store",
			err:       errors.New("leads: insert record: disk full"),
			wantCode:  http.StatusInternalServerError,
			wantError: "store_error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{process: func(context.Context, model.Lead) (*model.EnrichmentResult, error) {
				return nil, tt.err
			}}
			rr, body := serve(t, svc, http.MethodPost, "/process_lead", `{"profile_url":"https://example.com/in/jane"}`)
			assert.Equal(t, tt.wantCode, rr.Code)
			assert.Equal(t, tt.wantError, body["error"])
			assert.NotEmpty(t, body["message"])
			if tt.wantStage != "" {
				assert.Equal(t, tt.wantStage, body["stage"])
			} else {
				assert.NotContains(t, body, "stage")
			}
		})
	}
}

func TestListLeads(t *testing.T) {
	var got store.ListFilter
	svc := &fakeService{list: func(_ context.Context, f store.ListFilter) ([]model.LeadRecord, error) {
		got = f
		return []model.LeadRecord{{ID: "1", Lead: model.Lead{ProfileURL: "https://example.com/in/a"}}}, nil
	}}

	rr, body := serve(t, svc, http.MethodGet, "/leads?company=ExampleCo&limit=5&offset=10", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, store.ListFilter{Company: "ExampleCo", Limit: 5, Offset: 10}, got)
	assert.Len(t, body["leads"], 1)
}

func TestListLeads_EmptyAndInvalid(t *testing.T) {
	svc := &fakeService{list: func(context.Context, store.ListFilter) ([]model.LeadRecord, error) {
		return nil, nil
	}}

	rr, _ := serve(t, svc, http.MethodGet, "/leads", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"leads":[]}`, rr.Body.String())

	rr, body := serve(t, svc, http.MethodGet, "/leads?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_request", body["error"])

	rr, _ = serve(t, svc, http.MethodGet, "/leads?offset=abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetLead(t *testing.T) {
	svc := &fakeService{get: func(_ context.Context, url string) (*model.LeadRecord, error) {
		if url == "https://example.com/in/jane" {
			return &model.LeadRecord{ID: "1", Lead: model.Lead{ProfileURL: url}}, nil
		}
		return nil, store.ErrNotFound
	}}

	rr, body := serve(t, svc, http.MethodGet, "/lead?profile_url=https://example.com/in/jane", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "1", body["id"])

	rr, body = serve(t, svc, http.MethodGet, "/lead?profile_url=https://example.com/in/nobody", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found", body["error"])

	rr, _ = serve(t, svc, http.MethodGet, "/lead", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/process_lead", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()

	newRouter(&fakeService{}, []string{"*"}).ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecovererReturns500(t *testing.T) {
	svc := &fakeService{process: func(context.Context, model.Lead) (*model.EnrichmentResult, error) {
		panic("unexpected")
	}}
	rr, _ := serve(t, svc, http.MethodPost, "/process_lead", `{"profile_url":"u"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestIntParam(t *testing.T) {
	n, err := intParam("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = intParam("42")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = intParam("-3")
	assert.Error(t, err)
}

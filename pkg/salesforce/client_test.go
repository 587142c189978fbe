package salesforce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	gosf "github.com/k-capehart/go-salesforce/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// fakeOrg is an in-memory Lead table behind the REST endpoints go-salesforce
// calls.
type fakeOrg struct {
	mu     sync.Mutex
	leads  map[string]map[string]any
	nextID int
	reject string // errorCode returned for every request when set
}

func (o *fakeOrg) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	defer o.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	if o.reject != "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode([]map[string]any{{"message": "rejected", "errorCode": o.reject}})
		return
	}

	p := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(p, "/query"):
		q := r.URL.Query().Get("q")
		records := []map[string]any{}
		for _, rec := range o.leads {
			if site, _ := rec["Website"].(string); site != "" && strings.Contains(q, "'"+site+"'") {
				records = append(records, rec)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"totalSize": len(records), "done": true, "records": records})

	case r.Method == http.MethodPost && strings.HasSuffix(p, "/sobjects/Lead"):
		var rec map[string]any
		_ = json.NewDecoder(r.Body).Decode(&rec)
		if rec["LastName"] == nil {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": "", "success": false,
				"errors": []map[string]any{{"message": "Required fields are missing: [LastName]"}},
			})
			return
		}
		o.nextID++
		id := "00Q" + strings.Repeat("0", 11) + string(rune('0'+o.nextID))
		rec["Id"] = id
		delete(rec, "attributes")
		o.leads[id] = rec
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": id, "success": true, "errors": []any{}})

	case r.Method == http.MethodPatch && strings.Contains(p, "/sobjects/Lead/"):
		rec, ok := o.leads[path.Base(p)]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode([]map[string]any{{"message": "not found", "errorCode": "NOT_FOUND"}})
			return
		}
		var fields map[string]any
		_ = json.NewDecoder(r.Body).Decode(&fields)
		for k, v := range fields {
			if k != "attributes" && k != "Id" {
				rec[k] = v
			}
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func connectFake(t *testing.T, opts ...ClientOption) (Client, *fakeOrg) {
	t.Helper()
	org := &fakeOrg{leads: map[string]map[string]any{}}
	srv := httptest.NewServer(org)
	t.Cleanup(srv.Close)

	sf, err := gosf.Init(gosf.Creds{AccessToken: "00Dxx!token", Domain: srv.URL},
		gosf.WithValidateAuthentication(false),
		gosf.WithRoundTripper(http.DefaultTransport),
	)
	require.NoError(t, err)
	return NewClient(sf, opts...), org
}

func TestRestClient_LeadRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, org := connectFake(t, WithRateLimit(50))

	id, err := CreateLead(ctx, c, map[string]any{
		"FirstName": "Jane",
		"LastName":  "Doe",
		"Company":   "ExampleCo",
		"Website":   "https://example.com/in/jane",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	found, err := FindLeadByWebsite(ctx, c, "https://example.com/in/jane")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, id, found.ID)
	assert.Equal(t, "ExampleCo", found.Company)

	fields := map[string]any{"Title": "CTO"}
	require.NoError(t, UpdateLead(ctx, c, id, fields))
	assert.NotContains(t, fields, "Id")
	assert.Equal(t, "CTO", org.leads[id]["Title"])

	missing, err := FindLeadByWebsite(ctx, c, "https://example.com/in/nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRestClient_InsertRejected(t *testing.T) {
	c, _ := connectFake(t)

	_, err := c.InsertOne(context.Background(), "Lead", map[string]any{"Company": "ExampleCo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sf: insert Lead failed")
	assert.Contains(t, err.Error(), "LastName")
}

func TestRestClient_APIErrors(t *testing.T) {
	c, org := connectFake(t)
	org.reject = "INVALID_SESSION_ID"
	ctx := context.Background()

	var out []Lead
	err := c.Query(ctx, "SELECT Id FROM Lead", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sf: query")

	err = c.UpdateOne(ctx, "Lead", "00Q1", map[string]any{"Title": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sf: update Lead 00Q1")
}

func TestRestClient_UpdateUnknownID(t *testing.T) {
	c, _ := connectFake(t)
	err := c.UpdateOne(context.Background(), "Lead", "00Qmissing", map[string]any{"Title": "CTO"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "00Qmissing")
}

func TestWithRateLimit(t *testing.T) {
	tests := []struct {
		rps       float64
		wantBurst int
	}{
		{rps: 25, wantBurst: 25},
		{rps: 2.5, wantBurst: 2},
		{rps: 0.2, wantBurst: 1},
		{rps: 0},
		{rps: -3},
	}
	for _, tt := range tests {
		c := NewClient(nil, WithRateLimit(tt.rps)).(*restClient)
		if tt.wantBurst == 0 {
			assert.Nil(t, c.limiter, "rps %v", tt.rps)
			continue
		}
		require.NotNil(t, c.limiter, "rps %v", tt.rps)
		assert.Equal(t, rate.Limit(tt.rps), c.limiter.Limit())
		assert.Equal(t, tt.wantBurst, c.limiter.Burst())
	}
}

func TestAdmit_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	throttled := &restClient{limiter: rate.NewLimiter(rate.Every(time.Hour), 0)}
	assert.Error(t, throttled.admit(ctx))
	assert.ErrorIs(t, (&restClient{}).admit(ctx), context.Canceled)

	_, err := throttled.InsertOne(ctx, "Lead", map[string]any{"LastName": "Doe"})
	assert.ErrorContains(t, err, "sf: rate limit")
}

func TestConnect_Validation(t *testing.T) {
	tests := []struct {
		cfg  JWTConfig
		want string
	}{
		{JWTConfig{}, "sf: client id and key path are required"},
		{JWTConfig{ClientID: "3MVG9"}, "sf: key path is required"},
		{JWTConfig{KeyPath: "/keys/sf.pem"}, "sf: client id is required"},
	}
	for _, tt := range tests {
		_, err := Connect(tt.cfg)
		assert.EqualError(t, err, tt.want)
	}

	_, err := Connect(JWTConfig{ClientID: "3MVG9", KeyPath: "/nonexistent/sf.pem"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sf: read JWT private key")
}

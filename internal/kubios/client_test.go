package kubios

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pulse.monitor/internal/httputil"
	"github.com/banshee-data/pulse.monitor/internal/hrv"
)

const (
	testTokenURL   = "https://auth.kubios.test/oauth2/token"
	testAnalyzeURL = "https://analysis.kubios.test/v2/analytics/analyze"
)

var testCreds = Credentials{ClientID: "device-7", ClientSecret: "s3cret", APIKey: "key-42"}

type promptFunc func(context.Context) bool

func (f promptFunc) ConfirmRetry(ctx context.Context) bool { return f(ctx) }

func readinessReply() map[string]any {
	return map[string]any{
		"status": "ok",
		"analysis": map[string]any{
			"artefact_level":   "GOOD",
			"create_timestamp": "2024-04-16T11:27:17.545563+00:00",
			"mean_hr_bpm":      75.2,
			"mean_rr_ms":       798.5,
			"pns_index":        -0.41,
			"readiness":        62.5,
			"rmssd_ms":         28.3,
			"sdnn_ms":          31.9,
			"sns_index":        0.87,
			"stress_index":     12.4,
		},
	}
}

func TestAnalyze(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddJSONResponse(http.StatusOK, map[string]any{"access_token": "tok-1", "token_type": "Bearer", "expires_in": 3600})
	mock.AddJSONResponse(http.StatusOK, readinessReply())

	c := NewClient(mock, testCreds, testTokenURL, testAnalyzeURL, nil)
	got, err := c.Analyze(context.Background(), []int{812, 790, 805})
	require.NoError(t, err)

	want := hrv.Result{
		Source:    hrv.SourceCloud,
		MeanRRMs:  798.5,
		MeanHRBpm: 75.2,
		RMSSDMs:   28.3,
		SDNNMs:    31.9,
		Cloud: &hrv.CloudMetrics{
			PNSIndex:        -0.41,
			SNSIndex:        0.87,
			StressIndex:     12.4,
			Readiness:       62.5,
			ArtefactLevel:   "GOOD",
			CreateTimestamp: time.Date(2024, 4, 16, 11, 27, 17, 545563000, time.UTC),
		},
	}
	if diff := cmp.Diff(want, got, cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })); diff != "" {
		t.Errorf("Analyze() mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, got.Stressed())

	require.Equal(t, 2, mock.RequestCount())

	tokenReq := mock.GetRequest(0)
	assert.Equal(t, testTokenURL, tokenReq.URL.String())
	assert.Equal(t, "application/x-www-form-urlencoded", tokenReq.Header.Get("Content-Type"))
	user, pass, ok := tokenReq.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "device-7", user)
	assert.Equal(t, "s3cret", pass)
	form, err := url.ParseQuery(mock.RequestBody(0))
	require.NoError(t, err)
	assert.Equal(t, "client_credentials", form.Get("grant_type"))
	assert.Equal(t, "device-7", form.Get("client_id"))

	analyzeReq := mock.GetRequest(1)
	assert.Equal(t, testAnalyzeURL, analyzeReq.URL.String())
	assert.Equal(t, "Bearer tok-1", analyzeReq.Header.Get("Authorization"))
	assert.Equal(t, "key-42", analyzeReq.Header.Get("X-Api-Key"))
	assert.JSONEq(t, `{"type":"RRI","data":[812,790,805],"analysis":{"type":"readiness"}}`, mock.RequestBody(1))
}

func TestAnalyzeLoginRetry(t *testing.T) {
	tests := []struct {
		name     string
		prompt   RetryPrompt
		second   int
		wantErr  error
		requests int
		asked    bool
	}{
		{"no prompt", nil, 0, ErrAuthFailure, 1, false},
		{"declined", promptFunc(func(context.Context) bool { return false }), 0, ErrAuthFailure, 1, true},
		{"retry succeeds", promptFunc(func(context.Context) bool { return true }), http.StatusOK, nil, 3, true},
		{"retry fails", promptFunc(func(context.Context) bool { return true }), http.StatusForbidden, ErrAuthFailure, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := httputil.NewMockHTTPClient()
			mock.AddResponse(http.StatusUnauthorized, `{"error":"invalid_client"}`)
			if tt.second == http.StatusOK {
				mock.AddJSONResponse(http.StatusOK, map[string]string{"access_token": "tok-2"})
				mock.AddJSONResponse(http.StatusOK, readinessReply())
			} else if tt.second != 0 {
				mock.AddResponse(tt.second, "")
			}

			asked := false
			prompt := tt.prompt
			if prompt != nil {
				inner := prompt
				prompt = promptFunc(func(ctx context.Context) bool {
					asked = true
					return inner.ConfirmRetry(ctx)
				})
			}

			c := NewClient(mock, testCreds, testTokenURL, testAnalyzeURL, prompt)
			res, err := c.Analyze(context.Background(), []int{800, 810})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, hrv.SourceCloud, res.Source)
			}
			assert.Equal(t, tt.requests, mock.RequestCount())
			assert.Equal(t, tt.asked, asked)
		})
	}
}

func TestAnalyzeFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(m *httputil.MockHTTPClient)
		wantErr error
	}{
		{
			name:    "token transport error",
			setup:   func(m *httputil.MockHTTPClient) { m.AddErrorResponse(errors.New("no route to host")) },
			wantErr: ErrNetworkFailure,
		},
		{
			name:    "token without access_token",
			setup:   func(m *httputil.MockHTTPClient) { m.AddJSONResponse(http.StatusOK, map[string]string{}) },
			wantErr: ErrAuthFailure,
		},
		{
			name: "analysis server error",
			setup: func(m *httputil.MockHTTPClient) {
				m.AddJSONResponse(http.StatusOK, map[string]string{"access_token": "t"})
				m.AddResponse(http.StatusInternalServerError, "")
			},
			wantErr: ErrNetworkFailure,
		},
		{
			name: "analysis rejected",
			setup: func(m *httputil.MockHTTPClient) {
				m.AddJSONResponse(http.StatusOK, map[string]string{"access_token": "t"})
				m.AddJSONResponse(http.StatusOK, map[string]string{"status": "error", "error": "too few intervals"})
			},
			wantErr: ErrNetworkFailure,
		},
		{
			name: "bad timestamp",
			setup: func(m *httputil.MockHTTPClient) {
				reply := readinessReply()
				reply["analysis"].(map[string]any)["create_timestamp"] = "yesterday"
				m.AddJSONResponse(http.StatusOK, map[string]string{"access_token": "t"})
				m.AddJSONResponse(http.StatusOK, reply)
			},
			wantErr: ErrNetworkFailure,
		},
		{
			name: "analysis transport error",
			setup: func(m *httputil.MockHTTPClient) {
				m.AddJSONResponse(http.StatusOK, map[string]string{"access_token": "t"})
				m.AddErrorResponse(errors.New("connection reset"))
			},
			wantErr: ErrNetworkFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := httputil.NewMockHTTPClient()
			tt.setup(mock)
			c := NewClient(mock, testCreds, testTokenURL, testAnalyzeURL, nil)
			_, err := c.Analyze(context.Background(), []int{800, 810})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAnalyzeMissingCredentials(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	c := NewClient(mock, Credentials{ClientID: "only-id"}, testTokenURL, testAnalyzeURL, nil)
	_, err := c.Analyze(context.Background(), []int{800, 810})
	assert.ErrorIs(t, err, ErrAuthFailure)
	assert.Zero(t, mock.RequestCount())
}

func TestAnalyzeTimestampOffset(t *testing.T) {
	reply := readinessReply()
	reply["analysis"].(map[string]any)["create_timestamp"] = "2024-12-31T23:30:00+02:00"
	mock := httputil.NewMockHTTPClient()
	mock.AddJSONResponse(http.StatusOK, map[string]string{"access_token": "t"})
	mock.AddJSONResponse(http.StatusOK, reply)

	res, err := NewClient(mock, testCreds, testTokenURL, testAnalyzeURL, nil).Analyze(context.Background(), []int{800, 810})
	require.NoError(t, err)
	assert.True(t, res.Cloud.CreateTimestamp.Equal(time.Date(2024, 12, 31, 21, 30, 0, 0, time.UTC)))

	// the result survives the JSON round trip used by the history store
	b, err := json.Marshal(res)
	require.NoError(t, err)
	var back hrv.Result
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.Cloud.CreateTimestamp.Equal(res.Cloud.CreateTimestamp))
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv(EnvClientID, "")
	t.Setenv(EnvClientSecret, "from-env")
	t.Setenv(EnvAPIKey, "")

	path := filepath.Join(t.TempDir(), "kubios.env")
	require.NoError(t, os.WriteFile(path, []byte("KUBIOS_CLIENT_ID=file-id\nKUBIOS_CLIENT_SECRET=file-secret\nKUBIOS_API_KEY=file-key\n"), 0600))

	creds, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, Credentials{ClientID: "file-id", ClientSecret: "from-env", APIKey: "file-key"}, creds)
	assert.True(t, creds.Complete())

	_, err = LoadCredentials(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)

	creds, err = LoadCredentials()
	require.NoError(t, err)
	assert.False(t, creds.Complete())
}

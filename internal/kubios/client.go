// Package kubios submits beat intervals to the Kubios readiness analysis
// service and maps its reply onto hrv.Result.
package kubios

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/relvacode/iso8601"

	"github.com/banshee-data/pulse.monitor/internal/httputil"
	"github.com/banshee-data/pulse.monitor/internal/hrv"
	"github.com/banshee-data/pulse.monitor/internal/monitoring"
)

var (
	// ErrAuthFailure means no access token could be obtained.
	ErrAuthFailure = errors.New("kubios: authentication failed")
	// ErrNetworkFailure means the service could not be reached or rejected
	// the analysis.
	ErrNetworkFailure = errors.New("kubios: analysis request failed")
)

// DefaultTimeout bounds each request to the service.
const DefaultTimeout = 10 * time.Second

// maxResponseBytes caps how much of a reply is read.
const maxResponseBytes = 1 << 20

// RetryPrompt asks the user whether a failed login should be retried.
type RetryPrompt interface {
	ConfirmRetry(ctx context.Context) bool
}

// Client talks to the token and analysis endpoints.
type Client struct {
	hc         httputil.HTTPClient
	creds      Credentials
	tokenURL   string
	analyzeURL string
	prompt     RetryPrompt
}

// NewClient creates a client. prompt may be nil, in which case a failed login
// is not retried.
func NewClient(hc httputil.HTTPClient, creds Credentials, tokenURL, analyzeURL string, prompt RetryPrompt) *Client {
	return &Client{
		hc:         hc,
		creds:      creds,
		tokenURL:   tokenURL,
		analyzeURL: analyzeURL,
		prompt:     prompt,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type analyzeRequest struct {
	Type     string       `json:"type"`
	Data     []int        `json:"data"`
	Analysis analysisType `json:"analysis"`
}

type analysisType struct {
	Type string `json:"type"`
}

type analyzeResponse struct {
	Status   string         `json:"status"`
	Error    string         `json:"error,omitempty"`
	Analysis *cloudAnalysis `json:"analysis"`
}

type cloudAnalysis struct {
	ArtefactLevel   string  `json:"artefact_level"`
	CreateTimestamp string  `json:"create_timestamp"`
	MeanHRBpm       float64 `json:"mean_hr_bpm"`
	MeanRRMs        float64 `json:"mean_rr_ms"`
	PNSIndex        float64 `json:"pns_index"`
	Readiness       float64 `json:"readiness"`
	RMSSDMs         float64 `json:"rmssd_ms"`
	SDNNMs          float64 `json:"sdnn_ms"`
	SNSIndex        float64 `json:"sns_index"`
	StressIndex     float64 `json:"stress_index"`
}

// Analyze logs in, submits intervals (milliseconds) for a readiness analysis
// and returns the cloud result. A failed login is retried once if the prompt
// confirms.
func (c *Client) Analyze(ctx context.Context, intervals []int) (hrv.Result, error) {
	if !c.creds.Complete() {
		return hrv.Result{}, fmt.Errorf("%w: missing client credentials", ErrAuthFailure)
	}

	token, err := c.token(ctx)
	if err != nil {
		monitoring.Logf("Kubios login failed: %v", err)
		if c.prompt == nil || !c.prompt.ConfirmRetry(ctx) {
			return hrv.Result{}, err
		}
		if token, err = c.token(ctx); err != nil {
			return hrv.Result{}, err
		}
	}

	return c.analyze(ctx, token, intervals)
}

func (c *Client) token(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type": {"client_credentials"},
		"client_id":  {c.creds.ClientID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthFailure, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.creds.ClientID, c.creds.ClientSecret)

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token request: %w", ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint returned %d", ErrAuthFailure, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&tr); err != nil {
		return "", fmt.Errorf("%w: decoding token: %w", ErrAuthFailure, err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrAuthFailure)
	}
	return tr.AccessToken, nil
}

func (c *Client) analyze(ctx context.Context, token string, intervals []int) (hrv.Result, error) {
	body, err := json.Marshal(analyzeRequest{
		Type:     "RRI",
		Data:     intervals,
		Analysis: analysisType{Type: "readiness"},
	})
	if err != nil {
		return hrv.Result{}, fmt.Errorf("encoding analysis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.analyzeURL, bytes.NewReader(body))
	if err != nil {
		return hrv.Result{}, fmt.Errorf("%w: %w", ErrNetworkFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Api-Key", c.creds.APIKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return hrv.Result{}, fmt.Errorf("%w: %w", ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return hrv.Result{}, fmt.Errorf("%w: analysis endpoint returned %d", ErrNetworkFailure, resp.StatusCode)
	}

	var ar analyzeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&ar); err != nil {
		return hrv.Result{}, fmt.Errorf("%w: decoding analysis: %w", ErrNetworkFailure, err)
	}
	if ar.Status != "ok" || ar.Analysis == nil {
		return hrv.Result{}, fmt.Errorf("%w: analysis status %q %s", ErrNetworkFailure, ar.Status, ar.Error)
	}

	return ar.Analysis.result()
}

func (a *cloudAnalysis) result() (hrv.Result, error) {
	created, err := iso8601.ParseString(a.CreateTimestamp)
	if err != nil {
		return hrv.Result{}, fmt.Errorf("%w: bad create_timestamp %q: %w", ErrNetworkFailure, a.CreateTimestamp, err)
	}
	return hrv.Result{
		Source:    hrv.SourceCloud,
		MeanRRMs:  a.MeanRRMs,
		MeanHRBpm: a.MeanHRBpm,
		RMSSDMs:   a.RMSSDMs,
		SDNNMs:    a.SDNNMs,
		Cloud: &hrv.CloudMetrics{
			PNSIndex:        a.PNSIndex,
			SNSIndex:        a.SNSIndex,
			StressIndex:     a.StressIndex,
			Readiness:       a.Readiness,
			ArtefactLevel:   a.ArtefactLevel,
			CreateTimestamp: created,
		},
	}, nil
}

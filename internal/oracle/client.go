package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hackgods/hospital-capacity-scheduling/internal/observability"
)

const (
	opdPath = "/opd_priority"
	bedPath = "/bed_priority"
)

// ErrUnavailable covers every way a scoring call can fail. It is never retried here;
// the caller decides whether to resubmit.
var ErrUnavailable = errors.New("priority oracle unavailable")

// OPDInput is what the outpatient score is computed from.
type OPDInput struct {
	IllnessSeverity float64
	Age             int
	Transmittable   bool
	Disabled        bool
	PatientRating   float64
}

// BedInput extends the outpatient attributes with the admitting context.
type BedInput struct {
	OPDInput
	DoctorOffset  float64
	WaitingPeriod float64
}

type Scorer interface {
	ScoreOPD(ctx context.Context, in OPDInput) (float64, error)
	ScoreBed(ctx context.Context, in BedInput) (float64, error)
}

type opdRequest struct {
	IllnessSeverity float64 `json:"illness_severity"`
	Age             int     `json:"age"`
	Transmittable   int     `json:"transmittable"`
	Disabled        int     `json:"disabled"`
	PatientRating   float64 `json:"patient_rating"`
}

type bedRequest struct {
	opdRequest
	DoctorOffset  float64 `json:"doctor_offset"`
	WaitingPeriod float64 `json:"waiting_period"`
}

type scoreResponse struct {
	Priority *float64 `json:"priority"`
	Error    string   `json:"error"`
}

type HTTPClient struct {
	baseURL string
	http    *http.Client
	metrics *observability.Metrics
}

func NewHTTPClient(baseURL string, timeout time.Duration, metrics *observability.Metrics) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		metrics: metrics,
	}
}

func (c *HTTPClient) ScoreOPD(ctx context.Context, in OPDInput) (float64, error) {
	return c.score(ctx, opdPath, toOPDRequest(in))
}

func (c *HTTPClient) ScoreBed(ctx context.Context, in BedInput) (float64, error) {
	return c.score(ctx, bedPath, bedRequest{
		opdRequest:    toOPDRequest(in.OPDInput),
		DoctorOffset:  in.DoctorOffset,
		WaitingPeriod: in.WaitingPeriod,
	})
}

func (c *HTTPClient) score(ctx context.Context, path string, body any) (priority float64, err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordOracleCall(ctx, path, time.Since(start), err)
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return 0, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out scoreResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if out.Error != "" {
		return 0, fmt.Errorf("%w: %s", ErrUnavailable, out.Error)
	}
	if out.Priority == nil {
		return 0, fmt.Errorf("%w: response has no priority", ErrUnavailable)
	}

	return *out.Priority, nil
}

func toOPDRequest(in OPDInput) opdRequest {
	return opdRequest{
		IllnessSeverity: in.IllnessSeverity,
		Age:             in.Age,
		Transmittable:   boolToInt(in.Transmittable),
		Disabled:        boolToInt(in.Disabled),
		PatientRating:   in.PatientRating,
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreOPDSendsAttributes(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, opdPath, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"priority": 7}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, nil)
	p, err := c.ScoreOPD(context.Background(), OPDInput{
		IllnessSeverity: 8,
		Age:             61,
		Transmittable:   true,
		Disabled:        false,
		PatientRating:   4.5,
	})

	require.NoError(t, err)
	assert.Equal(t, 7.0, p)
	assert.Equal(t, map[string]any{
		"illness_severity": 8.0,
		"age":              61.0,
		"transmittable":    1.0,
		"disabled":         0.0,
		"patient_rating":   4.5,
	}, got)
}

func TestScoreBedAddsAdmittingContext(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, bedPath, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"priority": 3}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, nil)
	p, err := c.ScoreBed(context.Background(), BedInput{
		OPDInput:      OPDInput{IllnessSeverity: 5, Age: 30, Disabled: true, PatientRating: 5},
		DoctorOffset:  2,
		WaitingPeriod: 4,
	})

	require.NoError(t, err)
	assert.Equal(t, 3.0, p)
	assert.Equal(t, 2.0, got["doctor_offset"])
	assert.Equal(t, 4.0, got["waiting_period"])
	assert.Equal(t, 1.0, got["disabled"])
}

func TestScoreFailuresMapToUnavailable(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"error body": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error": "model not loaded"}`))
		},
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"garbage": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		},
		"missing priority": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		},
		"timeout": func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte(`{"priority": 1}`))
		},
	}

	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()

			c := NewHTTPClient(srv.URL, 50*time.Millisecond, nil)
			_, err := c.ScoreOPD(context.Background(), OPDInput{})
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestScoreDoesNotRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, nil)
	_, err := c.ScoreOPD(context.Background(), OPDInput{})

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, calls)
}

func TestUnreachableOracle(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1", 100*time.Millisecond, nil)
	_, err := c.ScoreBed(context.Background(), BedInput{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func up(ctx context.Context) error   { return nil }
func down(ctx context.Context) error { return errors.New("connection refused") }

func TestRunWorstStatus(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		want   Status
		code   int
	}{
		{"all up", map[string]Check{"index": PingCheck(up, StatusDown)}, StatusUp, http.StatusOK},
		{"cache degraded", map[string]Check{
			"index": PingCheck(up, StatusDown),
			"redis": PingCheck(down, StatusDegraded),
		}, StatusDegraded, http.StatusOK},
		{"postgres down", map[string]Check{
			"redis":    PingCheck(down, StatusDegraded),
			"postgres": PingCheck(down, StatusDown),
		}, StatusDown, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for name, check := range tt.checks {
				c.Register(name, check)
			}
			report := c.Run(context.Background())
			if report.Status != tt.want {
				t.Errorf("status = %s, want %s", report.Status, tt.want)
			}
			if len(report.Components) != len(tt.checks) {
				t.Errorf("components = %v", report.Components)
			}

			rec := httptest.NewRecorder()
			c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if rec.Code != tt.code {
				t.Errorf("ready code = %d, want %d", rec.Code, tt.code)
			}
		})
	}
}

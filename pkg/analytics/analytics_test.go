package analytics_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/jargonaut/pkg/analytics"
	"github.com/MrWong99/jargonaut/pkg/analytics/mock"
)

func TestClassifyHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		events, errs int
		avg          float64
		want         string
	}{
		{"idle", 0, 0, 0, analytics.StatusIdle},
		{"healthy", 100, 10, 1200, analytics.StatusHealthy},
		{"degraded", 100, 11, 1200, analytics.StatusDegraded},
		{"degraded wins over slow", 10, 5, 9000, analytics.StatusDegraded},
		{"slow", 10, 0, 5001, analytics.StatusSlow},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, _ := analytics.ClassifyHealth(tc.events, tc.errs, tc.avg)
			if got != tc.want {
				t.Errorf("status = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFanout_DeliversToAllAndJoinsErrors(t *testing.T) {
	t.Parallel()

	errA := errors.New("db down")
	errB := errors.New("broker down")
	a := &mock.Logger{Err: errA}
	b := &mock.Logger{}
	c := &mock.Logger{Err: errB}

	err := analytics.Fanout{a, b, c}.LogTranslation(context.Background(), analytics.Event{Term: "x"})
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("err = %v, want both sink errors", err)
	}
	for i, l := range []*mock.Logger{a, b, c} {
		if l.CallCount() != 1 {
			t.Errorf("logger %d calls = %d", i, l.CallCount())
		}
	}
}

func TestFanout_Empty(t *testing.T) {
	t.Parallel()

	if err := (analytics.Fanout{}).LogTranslation(context.Background(), analytics.Event{}); err != nil {
		t.Fatalf("err = %v", err)
	}
}

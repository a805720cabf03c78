package shutdown

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/yungbote/careline-backend/internal/platform/logger"
)

func TestDrainRunsEveryStepInOrder(t *testing.T) {
	var order []string
	step := func(name string, err error) Step {
		return Step{Name: name, Fn: func(context.Context) error {
			order = append(order, name)
			return err
		}}
	}

	failed := Drain(logger.Nop(), time.Second,
		step("http", nil),
		step("redis", errors.New("connection reset")),
		Step{Name: "unset"},
		step("db", nil),
	)
	if want := []string{"http", "redis", "db"}; !reflect.DeepEqual(order, want) {
		t.Fatalf("order: want=%v got=%v", want, order)
	}
	if want := []string{"redis"}; !reflect.DeepEqual(failed, want) {
		t.Fatalf("failed: want=%v got=%v", want, failed)
	}
}

func TestDrainSharesOneDeadline(t *testing.T) {
	slow := Step{Name: "http", Fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	var seen error
	after := Step{Name: "db", Fn: func(ctx context.Context) error {
		seen = ctx.Err()
		return nil
	}}

	start := time.Now()
	failed := Drain(nil, 30*time.Millisecond, slow, after)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("drain outlived its deadline: %s", elapsed)
	}
	if len(failed) != 1 || failed[0] != "http" {
		t.Fatalf("failed: want=[http] got=%v", failed)
	}
	if !errors.Is(seen, context.DeadlineExceeded) {
		t.Fatalf("later steps see the expired deadline: want=%v got=%v", context.DeadlineExceeded, seen)
	}
}

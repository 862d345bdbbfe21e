package main

import (
	"context"
	"errors"
	"testing"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"run", "extract", "aggregate", "report", "capture"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered: %v", name, err)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("missing --config flag")
	}
}

func TestTerminationReason(t *testing.T) {
	if got := terminationReason(context.Background(), nil); got != "completed" {
		t.Errorf("got %q", got)
	}
	if got := terminationReason(context.Background(), errors.New("db down")); got != "error" {
		t.Errorf("got %q", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := terminationReason(ctx, context.Canceled); got != "signal" {
		t.Errorf("got %q", got)
	}
}

func TestSignalContextStop(t *testing.T) {
	ctx, stop := signalContext(context.Background())
	stop()
	if ctx.Err() == nil {
		t.Error("stop must cancel the context")
	}
}

package otelinit

import (
	"context"
	"testing"
)

func TestWithSpan(t *testing.T) {
	ctx, end := WithSpan(context.Background(), "test-span")
	if ctx == nil {
		t.Fatal("expected context")
	}
	end()
}

func TestFlushNoop(t *testing.T) {
	Flush(context.Background(), func(context.Context) error { return nil })
}

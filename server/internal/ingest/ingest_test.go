package ingest

import (
	"testing"

	"go.uber.org/zap"

	"github.com/actiondispatch/dispatch/shared/wire"
)

func TestHandleIgnoresPing(t *testing.T) {
	in := &Ingestor{logger: zap.NewNop()}
	if err := in.handle(nil, wire.Ping{}, in.logger); err != nil {
		t.Fatalf("handle(Ping): %v", err)
	}
}

func TestHandleUnknownVariantIsNotFatal(t *testing.T) {
	in := &Ingestor{logger: zap.NewNop()}
	// A nil store is never touched by the unexpected-variant branch, so this
	// exercises the default case's defensive log-and-continue behavior.
	if err := in.handle(nil, nil, in.logger); err != nil {
		t.Fatalf("handle(nil): %v", err)
	}
}

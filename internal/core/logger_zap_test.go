package core

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"tracechain/pkg/domain"
)

func TestZapLoggerCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	svc, _ := staffedService(t, "", WithLogger(NewZapLogger(zap.New(core))))

	_, err := svc.UpdateStage(context.Background(), testStranger, testLot, domain.StageVendor)
	expectKind(t, err, domain.ErrUnauthorized)

	rejected := logs.FilterMessage("ledger operation rejected").All()
	if len(rejected) != 1 {
		t.Fatalf("expected one rejection entry, got %d", len(rejected))
	}
	entry := rejected[0]
	if entry.Level != zapcore.WarnLevel || entry.LoggerName != "ledger" {
		t.Fatalf("unexpected entry %+v", entry.Entry)
	}
	fields := entry.ContextMap()
	if fields["op"] != opUpdateStage || fields["kind"] != "UNAUTHORIZED" || fields["subject"] != testLot {
		t.Fatalf("unexpected fields %+v", fields)
	}
	if logs.FilterMessage("ledger operation").FilterLevelExact(zapcore.DebugLevel).Len() == 0 {
		t.Fatalf("expected debug entries for successful operations")
	}

	NewZapLogger(nil).Info("global logger fallback")
}

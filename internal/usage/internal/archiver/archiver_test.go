package archiver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/FergusFettes/openai-cd2-proxy/internal/usage"
)

type fakeLedger struct {
	matured       []usage.Record
	maturedErr    error
	deleteErr     error
	deleteCalled  bool
	maturedCutoff float64
}

func (f *fakeLedger) Matured(ctx context.Context, beforeUnix float64) ([]usage.Record, error) {
	f.maturedCutoff = beforeUnix
	if f.maturedErr != nil {
		return nil, f.maturedErr
	}
	return f.matured, nil
}

func (f *fakeLedger) DeleteMatured(ctx context.Context, beforeUnix float64) error {
	f.deleteCalled = true
	return f.deleteErr
}

func TestRunOnce_NoMaturedRows_SkipsUploadAndDelete(t *testing.T) {
	ledger := &fakeLedger{}
	a := New(ledger, nil, Config{MaturityWindow: time.Hour}, nil)

	if err := a.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if ledger.deleteCalled {
		t.Fatal("DeleteMatured should not be called when there are no matured rows")
	}
}

func TestRunOnce_MaturedQueryError_PropagatesWithoutDelete(t *testing.T) {
	ledger := &fakeLedger{maturedErr: errors.New("query failed")}
	a := New(ledger, nil, Config{MaturityWindow: time.Hour}, nil)

	err := a.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if ledger.deleteCalled {
		t.Fatal("DeleteMatured should not be called when Matured fails")
	}
}

func TestWriteParquet_ProducesValidFile(t *testing.T) {
	records := []usage.Record{
		{Caller: "alice", Time: 100, Tokens: 12, Kind: usage.KindPrompt},
		{Caller: "alice", Time: 101, Tokens: 7, Kind: usage.KindCompletion},
		{Caller: "bob", Time: 102, Tokens: 3, Kind: usage.KindPrompt},
	}

	data, err := writeParquet(records)
	if err != nil {
		t.Fatalf("writeParquet: %v", err)
	}

	const magic = "PAR1"
	if len(data) < 2*len(magic) {
		t.Fatalf("parquet output too small: %d bytes", len(data))
	}
	if string(data[:len(magic)]) != magic || string(data[len(data)-len(magic):]) != magic {
		t.Fatalf("parquet output missing magic header/footer bytes")
	}
}

func TestWriteParquet_EmptyInput(t *testing.T) {
	data, err := writeParquet(nil)
	if err != nil {
		t.Fatalf("writeParquet(nil): %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected a valid (header+footer-only) parquet file for zero rows")
	}
}

package db

import (
	"context"
	"testing"
)

func TestTxFromContext_Empty(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Fatalf("expected nil tx, got %v", tx)
	}
}

func TestTxFromContext_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Fatalf("expected nil tx for wrong type, got %v", tx)
	}
}

func TestConn_FallsBackToPool(t *testing.T) {
	if q := Conn(context.Background(), nil); q == nil {
		t.Fatal("expected pool querier")
	}
}

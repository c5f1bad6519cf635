package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simplici0/filaprint/internal/dbtest"
)

func TestDeduct(t *testing.T) {
	tests := []struct {
		name      string
		remaining float64
		grams     float64
		want      float64
	}{
		{name: "partial", remaining: 1000, grams: 120, want: 880},
		{name: "exact", remaining: 50, grams: 50, want: 0},
		{name: "clamped", remaining: 30, grams: 50, want: 0},
		{name: "already empty", remaining: 0, grams: 10, want: 0},
		{name: "nothing used", remaining: 42, grams: 0, want: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Deduct(tt.remaining, tt.grams), 1e-9)
		})
	}
}

func TestApplyClampsAtZero(t *testing.T) {
	ctx := context.Background()
	database := dbtest.New(t)
	userID := dbtest.InsertUser(t, database, "maker", 0.12)
	spoolID := dbtest.InsertSpool(t, database, userID, "PLA", 20, 1000, 30)

	remaining, err := Apply(ctx, database, spoolID, 50, time.Now())
	require.NoError(t, err)
	assert.Zero(t, remaining)
	assert.Zero(t, dbtest.SpoolRemaining(t, database, spoolID))
}

func TestApplyAccumulates(t *testing.T) {
	ctx := context.Background()
	database := dbtest.New(t)
	userID := dbtest.InsertUser(t, database, "maker", 0.12)
	spoolID := dbtest.InsertSpool(t, database, userID, "PETG", 25, 1000, 1000)

	_, err := Apply(ctx, database, spoolID, 120.5, time.Now())
	require.NoError(t, err)
	remaining, err := Apply(ctx, database, spoolID, 79.5, time.Now())
	require.NoError(t, err)

	assert.InDelta(t, 800, remaining, 1e-9)
	assert.InDelta(t, 800, dbtest.SpoolRemaining(t, database, spoolID), 1e-9)
}

func TestApplyUnknownSpool(t *testing.T) {
	database := dbtest.New(t)

	_, err := Apply(context.Background(), database, 999, 10, time.Now())
	require.ErrorIs(t, err, ErrSpoolNotFound)
}

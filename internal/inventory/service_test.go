package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ariefcatur/stonefab-orders/internal/audit"
	"github.com/ariefcatur/stonefab-orders/internal/memstore"
	"github.com/ariefcatur/stonefab-orders/internal/orders"
)

func setup(t *testing.T, products ...orders.Product) (*Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	require.NoError(t, st.InTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		for _, p := range products {
			if err := tx.UpsertProduct(ctx, p); err != nil {
				return err
			}
		}
		return nil
	}))
	svc := New(st, audit.StoreSink{Store: st}, nil, zaptest.NewLogger(t))
	return svc, st
}

var granite = orders.Product{ID: "p-granite", Name: "Black Granite", PricePerSqm: 120, CurrentStock: 50, ReorderPoint: 5}

func TestReserveReleaseRoundTrip(t *testing.T) {
	svc, _ := setup(t, granite)
	ctx := context.Background()

	before, err := svc.Level(ctx, granite.ID)
	require.NoError(t, err)

	lvl, err := svc.Reserve(ctx, granite.ID, 12.5, "q-1")
	require.NoError(t, err)
	assert.Equal(t, 12.5, lvl.Reserved)
	assert.Equal(t, 37.5, lvl.Available)

	lvl, err = svc.Release(ctx, granite.ID, 12.5, "q-1")
	require.NoError(t, err)
	assert.Equal(t, before.Reserved, lvl.Reserved)
	assert.Equal(t, before.Available, lvl.Available)
}

func TestReserveRejectsMoreThanAvailable(t *testing.T) {
	svc, _ := setup(t, granite)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, granite.ID, 40, "q-1")
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, granite.ID, 10.001, "q-2")
	var short *orders.InsufficientStock
	require.ErrorAs(t, err, &short)
	assert.Equal(t, granite.ID, short.ProductID)
	assert.Equal(t, 10.0, short.Available)
	assert.Equal(t, 10.001, short.Requested)
	assert.ErrorIs(t, err, orders.ErrGuardViolation)

	lvl, _ := svc.Level(ctx, granite.ID)
	assert.Equal(t, 40.0, lvl.Reserved, "failed reserve must not change state")
}

func TestReserveValidatesQuantity(t *testing.T) {
	svc, _ := setup(t, granite)
	_, err := svc.Reserve(context.Background(), granite.ID, 0, "q")
	assert.ErrorIs(t, err, orders.ErrValidation)
	_, err = svc.Reserve(context.Background(), "missing", 1, "q")
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestConcurrentReserveOnlyOneWins(t *testing.T) {
	svc, _ := setup(t, granite)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Reserve(ctx, granite.ID, 30, "q")
		}(i)
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		var ins *orders.InsufficientStock
		switch {
		case err == nil:
			ok++
		case errors.As(err, &ins):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)

	lvl, _ := svc.Level(ctx, granite.ID)
	assert.Equal(t, 30.0, lvl.Reserved)
}

func TestReleaseFloorsAtZero(t *testing.T) {
	svc, _ := setup(t, granite)
	lvl, err := svc.Release(context.Background(), granite.ID, 5, "q")
	require.NoError(t, err)
	assert.Equal(t, 0.0, lvl.Reserved)
}

func TestConvertToDeduction(t *testing.T) {
	svc, _ := setup(t, granite)
	ctx := context.Background()
	_, err := svc.Reserve(ctx, granite.ID, 20, "q-1")
	require.NoError(t, err)

	lvl, err := svc.ConvertToDeduction(ctx, granite.ID, 20, "q-1")
	require.NoError(t, err)
	assert.Equal(t, 30.0, lvl.CurrentStock)
	assert.Equal(t, 0.0, lvl.Reserved)
}

func TestReserveLinesIsAllOrNothing(t *testing.T) {
	marble := orders.Product{ID: "p-marble", Name: "Carrara", CurrentStock: 3}
	svc, st := setup(t, granite, marble)
	ctx := context.Background()

	q := orders.Quote{ID: "q-1", Items: []orders.LineItem{
		{ProductID: granite.ID, TotalSqm: 10},
		{ProductID: marble.ID, TotalSqm: 2},
		{ProductID: marble.ID, TotalSqm: 2}, // aggregated: 4 > 3
	}}
	err := st.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		return svc.ReserveLines(ctx, tx, q, "u-1")
	})
	var short *orders.InsufficientStock
	require.ErrorAs(t, err, &short)
	assert.Equal(t, marble.ID, short.ProductID)
	assert.Equal(t, 4.0, short.Requested)

	g, _ := svc.Level(ctx, granite.ID)
	assert.Equal(t, 0.0, g.Reserved, "granite reservation must be rolled back")
	moves, _ := svc.Movements(ctx, granite.ID)
	assert.Empty(t, moves)
}

func TestManualAdjust(t *testing.T) {
	svc, st := setup(t, granite)
	ctx := context.Background()
	foreman := orders.Actor{ID: "u-f", Name: "Ravi", Role: orders.RoleFactory}

	_, err := svc.ManualAdjust(ctx, foreman, Adjustment{ProductID: granite.ID, Delta: 5})
	assert.ErrorIs(t, err, orders.ErrValidation, "reason is mandatory")

	_, err = svc.ManualAdjust(ctx, orders.Actor{ID: "u-s", Role: orders.RoleSalesRep},
		Adjustment{ProductID: granite.ID, Delta: 5, Reason: "count"})
	var np *orders.NotPermitted
	assert.ErrorAs(t, err, &np)

	lvl, err := svc.ManualAdjust(ctx, foreman, Adjustment{ProductID: granite.ID, Delta: 25, Reason: "slab delivery", Reference: "PO-77", Procurement: true})
	require.NoError(t, err)
	assert.Equal(t, 75.0, lvl.CurrentStock)

	lvl, err = svc.ManualAdjust(ctx, foreman, Adjustment{ProductID: granite.ID, Delta: -500, Reason: "flood damage"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, lvl.CurrentStock, "on hand floors at zero")
	assert.True(t, lvl.NeedsReorder)

	moves, err := svc.Movements(ctx, granite.ID)
	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.Equal(t, orders.MoveProcurement, moves[0].Kind)
	assert.Equal(t, "PO-77", moves[0].Reference)
	assert.Equal(t, orders.MoveAdjust, moves[1].Kind)

	recs, _ := st.ListAudit(ctx, orders.EntityProduct, granite.ID)
	require.Len(t, recs, 2)
	assert.Equal(t, "slab delivery", recs[0].Reason)
	assert.JSONEq(t, `{"current_stock":50}`, recs[0].OldValue)
}

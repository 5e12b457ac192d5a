package orders

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		from   Status
		action Action
		next   Status
		err    error
	}{
		{"sales submits draft", RoleSalesRep, StatusDraft, ActionSubmit, StatusSubmitted, nil},
		{"resubmit after reject", RoleSalesRep, StatusRejected, ActionSubmit, StatusSubmitted, nil},
		{"manager approves", RoleManager, StatusSubmitted, ActionApprove, StatusApproved, nil},
		{"sales cannot approve", RoleSalesRep, StatusSubmitted, ActionApprove, "", ErrGuardViolation},
		{"approve needs submitted", RoleManager, StatusDraft, ActionApprove, "", ErrGuardViolation},
		{"factory accepts order", RoleFactory, StatusOrdered, ActionAccept, StatusAccepted, nil},
		{"finance completes", RoleFinance, StatusReady, ActionComplete, StatusCompleted, nil},
		{"admin does anything legal", RoleAdmin, StatusInProduction, ActionReady, StatusReady, nil},
		{"no way out of completed", RoleAdmin, StatusCompleted, ActionCancel, "", ErrGuardViolation},
		{"unknown action", RoleAdmin, StatusDraft, "SHIP", "", ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := Decide(tc.role, tc.from, tc.action)
			if tc.err != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tc.err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.next, r.Next)
		})
	}
}

func TestIllegalTransitionBeatsPermission(t *testing.T) {
	_, err := Decide(RoleSalesRep, StatusDraft, ActionApprove)
	var it *IllegalTransition
	require.ErrorAs(t, err, &it)
	assert.Equal(t, StatusDraft, it.From)
}

func TestCancelReachableFromEveryOpenStatus(t *testing.T) {
	for _, s := range AllStatuses {
		r, _ := RuleFor(ActionCancel)
		assert.Equal(t, !s.Terminal(), r.Allows(s), s)
	}
	r, _ := RuleFor(ActionCancel)
	assert.True(t, r.CommentRequired)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusSubmitted, StatusRejected))
	assert.True(t, CanTransition(StatusRejected, StatusSubmitted))
	assert.False(t, CanTransition(StatusDraft, StatusOrdered))
	assert.False(t, CanTransition(StatusCancelled, StatusDraft))
}

func TestCanEdit(t *testing.T) {
	assert.True(t, CanEdit(RoleSalesRep, StatusDraft))
	assert.True(t, CanEdit(RoleSalesRep, StatusRejected))
	assert.False(t, CanEdit(RoleSalesRep, StatusSubmitted))
	assert.True(t, CanEdit(RoleManager, StatusSubmitted))
	assert.False(t, CanEdit(RoleManager, StatusApproved))
	assert.True(t, CanEdit(RoleAdmin, StatusRejected))
	assert.False(t, CanEdit(RoleAdmin, StatusOrdered))
	assert.False(t, CanEdit(RoleFinance, StatusDraft))
	assert.False(t, CanEdit(RoleFactory, StatusDraft))
}

func TestParseRole(t *testing.T) {
	for in, want := range map[string]Role{
		"Admin":           RoleAdmin,
		" salesrep ":      RoleSalesRep,
		"Senior Manager":  RoleManager,
		"Finance Officer": RoleFinance,
		"Factory Foreman": RoleFactory,
	} {
		got, ok := ParseRole(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseRole("Owner")
	assert.False(t, ok)
}

func TestRequire(t *testing.T) {
	assert.NoError(t, Require(RoleFinance, PermRecordPayment))
	assert.NoError(t, Require(RoleAdmin, PermUpdateSettings))
	err := Require(RoleManager, PermUpdateSettings)
	assert.ErrorIs(t, err, ErrGuardViolation)
	assert.Contains(t, err.Error(), "role Manager may not settings.update")
}

func TestKind(t *testing.T) {
	assert.Equal(t, ErrNotFound, Kind(&NotFoundError{Entity: "quote", ID: "x"}))
	assert.Equal(t, ErrConcurrencyConflict, Kind(&ConflictError{Resource: "quote"}))
	assert.Equal(t, ErrPersistence, Kind(&PersistenceError{Op: "get", Err: errors.New("down")}))
	assert.Nil(t, Kind(errors.New("plain")))
}

func TestProductAvailability(t *testing.T) {
	p := Product{CurrentStock: 10, ReservedStock: 4, ReorderPoint: 6}
	assert.Equal(t, 6.0, p.Available())
	assert.True(t, p.NeedsReorder())
}

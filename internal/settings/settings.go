// Package settings holds the runtime tunables an Admin can change without a
// redeploy. Every write is audited.
package settings

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/stonefab-orders/internal/audit"
	"github.com/ariefcatur/stonefab-orders/internal/orders"
)

// validators lists the keys that may be written and how each value is checked.
var validators = map[string]func(string) error{
	orders.SettingDepositThresholdPct: percent,
}

func percent(v string) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || f > 100 {
		return &orders.ValidationError{Field: "value", Message: "must be a number between 0 and 100"}
	}
	return nil
}

type Service struct {
	Store orders.Store
	Audit audit.Sink
	Log   *zap.Logger
	Now   func() time.Time
}

func New(store orders.Store, sink audit.Sink, log *zap.Logger) *Service {
	if sink == nil {
		sink = audit.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{Store: store, Audit: sink, Log: log, Now: time.Now}
}

func (s *Service) Get(ctx context.Context, key string) (orders.Setting, error) {
	var out orders.Setting
	err := s.Store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		v, ok, err := tx.GetSetting(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return &orders.NotFoundError{Entity: "setting", ID: key}
		}
		out = v
		return nil
	})
	return out, err
}

// Set writes one setting. Only Admin holds the permission.
func (s *Service) Set(ctx context.Context, actor orders.Actor, key, value string) (orders.Setting, error) {
	if err := actor.Validate(); err != nil {
		return orders.Setting{}, err
	}
	if err := orders.Require(actor.Role, orders.PermUpdateSettings); err != nil {
		return orders.Setting{}, err
	}
	check, ok := validators[key]
	if !ok {
		return orders.Setting{}, &orders.ValidationError{Field: "key", Message: "unknown setting " + key}
	}
	value = strings.TrimSpace(value)
	if err := check(value); err != nil {
		return orders.Setting{}, err
	}

	next := orders.Setting{Key: key, Value: value, UpdatedAt: s.Now().UTC(), UpdatedBy: actor.ID}
	var old string
	err := s.Store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		prev, _, err := tx.GetSetting(ctx, key)
		if err != nil {
			return err
		}
		old = prev.Value
		return tx.PutSetting(ctx, next)
	})
	if err != nil {
		return orders.Setting{}, err
	}

	rec := audit.Entry(actor, "UPDATE_SETTING", orders.EntitySettings, key)
	rec = audit.Diff(rec, map[string]string{key: old}, map[string]string{key: value})
	s.Audit.Record(ctx, rec)
	s.Log.Info("setting updated", zap.String("key", key), zap.String("value", value), zap.String("by", actor.ID))
	return next, nil
}

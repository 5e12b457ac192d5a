package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ariefcatur/stonefab-orders/internal/orders"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report json names, not Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Code   string `json:"code,omitempty"`
	Detail any    `json:"detail,omitempty"`
}

var kinds = []struct {
	sentinel error
	name     string
	status   int
}{
	{orders.ErrValidation, "validation", http.StatusBadRequest},
	{orders.ErrNotFound, "not_found", http.StatusNotFound},
	{orders.ErrGuardViolation, "guard_violation", http.StatusUnprocessableEntity},
	{orders.ErrConcurrencyConflict, "concurrency_conflict", http.StatusConflict},
	{orders.ErrPersistence, "persistence", http.StatusServiceUnavailable},
}

func detail[T error](code string) func(error) (string, any, bool) {
	return func(err error) (string, any, bool) {
		var t T
		if errors.As(err, &t) {
			return code, t, true
		}
		return "", nil, false
	}
}

// details names the structured reason carried by an error, if any.
var details = []func(error) (string, any, bool){
	detail[*orders.ValidationError]("invalid_field"),
	detail[*orders.NotFoundError]("not_found"),
	detail[*orders.IllegalTransition]("illegal_transition"),
	detail[*orders.NotPermitted]("not_permitted"),
	detail[*orders.CreditHold]("credit_hold"),
	detail[*orders.CreditLimitExceeded]("credit_limit_exceeded"),
	detail[*orders.InsufficientStock]("insufficient_stock"),
	detail[*orders.BalanceOutstanding]("balance_outstanding"),
	detail[*orders.DepositRequired]("deposit_required"),
	detail[*orders.AlreadyInvoiced]("already_invoiced"),
	detail[*orders.InvoiceLocked]("invoice_locked"),
	detail[*orders.ConflictError]("conflict"),
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Error: err.Error(), Kind: "internal"}
	status := http.StatusInternalServerError
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			body.Kind, status = k.name, k.status
			break
		}
	}
	for _, d := range details {
		if code, v, ok := d(err); ok {
			body.Code, body.Detail = code, v
			break
		}
	}
	var np *orders.NotPermitted
	if errors.As(err, &np) {
		status = http.StatusForbidden
	}
	if status >= http.StatusInternalServerError {
		a.Log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, body)
}

// decode reads a JSON body into dst and runs its validate tags.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &orders.ValidationError{Field: "body", Message: "invalid json"}
	}
	return check(dst)
}

func check(v any) error {
	err := validate.Struct(v)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		return &orders.ValidationError{Field: field, Message: "failed " + fe.Tag() + " " + fe.Param()}
	}
	return err
}

// actorFrom reads the caller identity set by the gateway.
func actorFrom(r *http.Request) (orders.Actor, bool) {
	role, ok := orders.ParseRole(r.Header.Get("X-Actor-Role"))
	if !ok {
		return orders.Actor{}, false
	}
	a := orders.Actor{
		ID:   r.Header.Get("X-Actor-Id"),
		Name: r.Header.Get("X-Actor-Name"),
		Role: role,
	}
	if a.Validate() != nil {
		return orders.Actor{}, false
	}
	return a, true
}

func (a *API) actor(w http.ResponseWriter, r *http.Request) (orders.Actor, bool) {
	act, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid actor headers"})
	}
	return act, ok
}

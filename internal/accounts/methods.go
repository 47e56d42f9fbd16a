package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Method pairs a payment method with the ledger account that backs it.
// The method code is the identity reconciliations reference; the account
// code is where its money moves. They often coincide but are not required
// to.
type Method struct {
	Code        string
	AccountCode string
}

// MethodConfig supplies the tenant's payment-method configuration: which
// account codes are cash-controlled (and therefore require reconciliation)
// and which suspense account absorbs short/over variances. Upstream setup
// owns this data; the core only reads it.
type MethodConfig interface {
	CashControlledCodes(ctx context.Context, tenantID int64) ([]string, error)
	CashControlledMethods(ctx context.Context, tenantID int64) ([]Method, error)
	SuspenseAccountCode(ctx context.Context, tenantID int64) (string, error)
	CashControlEnabled(ctx context.Context, tenantID int64) (bool, error)
}

// ErrSuspenseNotConfigured indicates the tenant has no designated
// shortage/overage account.
var ErrSuspenseNotConfigured = errors.New("accounts: suspense account not configured")

type methodConfig struct {
	db *pgxpool.Pool
}

// NewMethodConfig builds a MethodConfig backed by the payment_methods and
// tenant_settings tables.
func NewMethodConfig(db *pgxpool.Pool) MethodConfig {
	return &methodConfig{db: db}
}

func (m *methodConfig) CashControlledCodes(ctx context.Context, tenantID int64) ([]string, error) {
	rows, err := m.db.Query(ctx, `SELECT DISTINCT account_code FROM payment_methods WHERE tenant_id=$1 AND cash_controlled AND is_active ORDER BY account_code`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("accounts: list cash-controlled codes: %w", err)
	}
	defer rows.Close()
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (m *methodConfig) CashControlledMethods(ctx context.Context, tenantID int64) ([]Method, error) {
	rows, err := m.db.Query(ctx, `SELECT code, account_code FROM payment_methods WHERE tenant_id=$1 AND cash_controlled AND is_active ORDER BY code`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("accounts: list cash-controlled methods: %w", err)
	}
	defer rows.Close()
	var methods []Method
	for rows.Next() {
		var method Method
		if err := rows.Scan(&method.Code, &method.AccountCode); err != nil {
			return nil, err
		}
		methods = append(methods, method)
	}
	return methods, rows.Err()
}

func (m *methodConfig) SuspenseAccountCode(ctx context.Context, tenantID int64) (string, error) {
	var code string
	err := m.db.QueryRow(ctx, `SELECT suspense_account_code FROM tenant_settings WHERE tenant_id=$1`, tenantID).Scan(&code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrSuspenseNotConfigured
		}
		return "", err
	}
	if code == "" {
		return "", ErrSuspenseNotConfigured
	}
	return code, nil
}

func (m *methodConfig) CashControlEnabled(ctx context.Context, tenantID int64) (bool, error) {
	var enabled bool
	err := m.db.QueryRow(ctx, `SELECT cash_control_enabled FROM tenant_settings WHERE tenant_id=$1`, tenantID).Scan(&enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return enabled, nil
}

package accounts

import (
	"time"

	"github.com/google/uuid"
)

// AccountType enumerates chart-of-accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Account models a chart-of-accounts node scoped to a tenant. The hierarchy
// is a single level: a parent account rolls up its leaf children and is
// never posted to directly.
type Account struct {
	ID        uuid.UUID   `json:"id"`
	TenantID  int64       `json:"-"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`
	ParentID  *uuid.UUID  `json:"parent_id,omitempty"`
	IsParent  bool        `json:"is_parent"`
	IsActive  bool        `json:"is_active"`
	IsSystem  bool        `json:"is_system"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// PaymentMethod describes a configured tender type for a tenant. Methods
// flagged cash-controlled participate in cashier reconciliation.
type PaymentMethod struct {
	ID             int64
	TenantID       int64
	Code           string
	Name           string
	AccountCode    string
	CashControlled bool
	IsActive       bool
}

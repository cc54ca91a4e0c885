// Package usage tracks how many creations a free-plan user has made. The
// counter lives in the identity provider's private user metadata.
package usage

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/aisaas/backend/infra/clerk"
	svcerrors "github.com/aisaas/backend/internal/errors"
)

// FreeUsageKey is the private metadata key holding the counter.
const FreeUsageKey = "free_usage"

// DefaultFreeLimit is the number of creations a free user may make.
const DefaultFreeLimit = 10

// MetadataStore reads and patches private user metadata.
type MetadataStore interface {
	GetUser(ctx context.Context, userID string) (clerk.User, error)
	UpdatePrivateMetadata(ctx context.Context, userID string, patch map[string]interface{}) (clerk.User, error)
}

// Account is the caller's plan and usage for one request.
type Account struct {
	UserID    string
	Plan      string
	FreeUsage int
}

// Premium reports whether the account is on the paid plan.
func (a Account) Premium() bool {
	return a.Plan == clerk.PlanPremium
}

// Meter loads, checks and records free-plan usage.
type Meter struct {
	store MetadataStore
	limit int
}

// NewMeter creates a Meter. A non-positive limit selects DefaultFreeLimit.
func NewMeter(store MetadataStore, limit int) *Meter {
	if limit <= 0 {
		limit = DefaultFreeLimit
	}
	return &Meter{store: store, limit: limit}
}

// Limit returns the free creation limit.
func (m *Meter) Limit() int {
	return m.limit
}

// Load resolves the account for a verified session. Premium accounts always
// report zero usage. A free user without a counter gets one initialised to 0.
func (m *Meter) Load(ctx context.Context, session clerk.Session) (Account, error) {
	acct := Account{UserID: session.UserID, Plan: session.Plan}
	if acct.Plan != clerk.PlanPremium {
		acct.Plan = clerk.PlanFree
	}
	if acct.Premium() {
		return acct, nil
	}

	user, err := m.store.GetUser(ctx, session.UserID)
	if err != nil {
		return Account{}, fmt.Errorf("load usage for %s: %w", session.UserID, err)
	}

	count, ok := counterValue(user.PrivateMetadata[FreeUsageKey])
	if !ok {
		if _, err := m.store.UpdatePrivateMetadata(ctx, session.UserID, map[string]interface{}{FreeUsageKey: 0}); err != nil {
			return Account{}, fmt.Errorf("initialise usage for %s: %w", session.UserID, err)
		}
		count = 0
	}
	acct.FreeUsage = count
	return acct, nil
}

// Check rejects a free account whose usage has reached the limit.
func (m *Meter) Check(acct Account) error {
	if !acct.Premium() && acct.FreeUsage >= m.limit {
		return svcerrors.LimitReached()
	}
	return nil
}

// Record counts one creation against a free account. Premium accounts are
// not metered.
func (m *Meter) Record(ctx context.Context, acct Account) error {
	if acct.Premium() {
		return nil
	}
	if _, err := m.store.UpdatePrivateMetadata(ctx, acct.UserID, map[string]interface{}{FreeUsageKey: acct.FreeUsage + 1}); err != nil {
		return fmt.Errorf("record usage for %s: %w", acct.UserID, err)
	}
	return nil
}

// counterValue accepts the shapes the metadata JSON may hold.
func counterValue(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || n < 0 {
			return 0, false
		}
		return int(n), true
	case int:
		return n, n >= 0
	case int64:
		return int(n), n >= 0
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil && i >= 0
	default:
		return 0, false
	}
}

package database

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lysyi3m/bid-comb/app/bid"
)

const subscriptionColumns = `id, email, owner_ref, keywords, regions, categories,
	min_budget, max_budget, enabled, origin, created_at, updated_at`

// SubscriptionStore is the read path for subscription filters plus the
// upsert/disable operations used by the file sync.
type SubscriptionStore struct {
	db *DB
}

func NewSubscriptionStore(db *DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func (r *SubscriptionStore) ListEnabled(ctx context.Context) ([]bid.Subscription, error) {
	var rows []subscriptionRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE enabled = 1
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled subscriptions: %w", err)
	}

	subs := make([]bid.Subscription, 0, len(rows))
	for _, row := range rows {
		sub, err := row.toSubscription()
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// Upsert inserts or replaces the subscription identified by sub.ID. An empty
// ID gets a generated one.
func (r *SubscriptionStore) Upsert(ctx context.Context, sub bid.Subscription, origin string) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}

	keywords, err := encodeList(sub.Keywords)
	if err != nil {
		return err
	}
	regions, err := encodeList(sub.Regions)
	if err != nil {
		return err
	}
	categories, err := encodeList(sub.Categories)
	if err != nil {
		return err
	}

	minBudget, err := budgetParam(sub.MinBudget)
	if err != nil {
		return err
	}
	maxBudget, err := budgetParam(sub.MaxBudget)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			owner_ref = excluded.owner_ref,
			keywords = excluded.keywords,
			regions = excluded.regions,
			categories = excluded.categories,
			min_budget = excluded.min_budget,
			max_budget = excluded.max_budget,
			enabled = excluded.enabled,
			origin = excluded.origin,
			updated_at = excluded.updated_at
	`, sub.ID, sub.Email, sub.OwnerRef, keywords, regions, categories,
		minBudget, maxBudget,
		boolToInt(sub.Enabled), origin, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription %s: %w", sub.ID, err)
	}

	return nil
}

// DisableMissing disables every subscription of origin whose ID is not in
// keepIDs and returns how many rows changed.
func (r *SubscriptionStore) DisableMissing(ctx context.Context, origin string, keepIDs []string) (int, error) {
	now := time.Now().UTC()

	query := `UPDATE subscriptions SET enabled = 0, updated_at = ? WHERE origin = ? AND enabled = 1`
	args := []any{now, origin}
	if len(keepIDs) > 0 {
		var err error
		query, args, err = sqlx.In(query+` AND id NOT IN (?)`, now, origin, keepIDs)
		if err != nil {
			return 0, fmt.Errorf("failed to build disable query: %w", err)
		}
		query = r.db.Rebind(query)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to disable subscriptions: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(affected), nil
}

func (r *SubscriptionStore) GetCount(ctx context.Context) (int, int, error) {
	var counts struct {
		Total   int `db:"total"`
		Enabled int `db:"enabled"`
	}
	err := r.db.GetContext(ctx, &counts, `
		SELECT COUNT(*) AS total, COALESCE(SUM(enabled), 0) AS enabled FROM subscriptions
	`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return counts.Total, counts.Enabled, nil
}

func (row subscriptionRow) toSubscription() (bid.Subscription, error) {
	keywords, err := decodeList(row.Keywords)
	if err != nil {
		return bid.Subscription{}, fmt.Errorf("subscription %s keywords: %w", row.ID, err)
	}
	regions, err := decodeList(row.Regions)
	if err != nil {
		return bid.Subscription{}, fmt.Errorf("subscription %s regions: %w", row.ID, err)
	}
	categories, err := decodeList(row.Categories)
	if err != nil {
		return bid.Subscription{}, fmt.Errorf("subscription %s categories: %w", row.ID, err)
	}

	return bid.Subscription{
		ID:         row.ID,
		Email:      row.Email,
		OwnerRef:   row.OwnerRef,
		Keywords:   keywords,
		Regions:    regions,
		Categories: categories,
		MinBudget:  budgetValue(row.MinBudget),
		MaxBudget:  budgetValue(row.MaxBudget),
		Enabled:    row.Enabled,
	}, nil
}

// budgetParam converts a budget to the signed column type. Amounts that do
// not fit are rejected so they never read back as unknown.
func budgetParam(v *uint64) (*int64, error) {
	if v == nil {
		return nil, nil
	}
	if *v > math.MaxInt64 {
		return nil, fmt.Errorf("%w: %d", ErrBudgetOutOfRange, *v)
	}
	n := int64(*v)
	return &n, nil
}

func budgetValue(v *int64) *uint64 {
	if v == nil || *v < 0 {
		return nil
	}
	n := uint64(*v)
	return &n
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/edupredict/risk-monitor/internal/domain/risk"
	"github.com/edupredict/risk-monitor/internal/domain/shared"
)

// PolicyRepository stores risk policy versions in risk_policies.
type PolicyRepository struct {
	conn Querier
}

func NewPolicyRepository(conn Querier) *PolicyRepository {
	return &PolicyRepository{conn: conn}
}

var _ risk.PolicyRepository = (*PolicyRepository)(nil)

// Latest returns the newest policy or ErrPolicyNotFound.
func (r *PolicyRepository) Latest(ctx context.Context) (*risk.Policy, error) {
	var (
		p   risk.Policy
		raw []byte
	)
	err := r.conn.QueryRow(ctx, `
		SELECT version, thresholds, updated_by, updated_at
		FROM risk_policies
		ORDER BY version DESC
		LIMIT 1`).Scan(&p.Version, &raw, &p.UpdatedBy, &p.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrPolicyNotFound
		}
		return nil, fmt.Errorf("failed to load risk policy: %w", err)
	}

	if err := json.Unmarshal(raw, &p.Thresholds); err != nil {
		return nil, fmt.Errorf("failed to decode risk policy %d: %w", p.Version, err)
	}
	return &p, nil
}

// Save appends p. A version that already exists is a conflict: another
// instance published first.
func (r *PolicyRepository) Save(ctx context.Context, p *risk.Policy) error {
	raw, err := json.Marshal(p.Thresholds)
	if err != nil {
		return fmt.Errorf("failed to encode risk policy: %w", err)
	}

	_, err = r.conn.Exec(ctx, `
		INSERT INTO risk_policies (version, thresholds, updated_by, updated_at)
		VALUES ($1, $2, $3, $4)`,
		p.Version, raw, p.UpdatedBy, p.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("risk", "SavePolicy", shared.ErrConflict,
				fmt.Sprintf("risk policy version %d already exists", p.Version))
		}
		return fmt.Errorf("failed to save risk policy: %w", err)
	}
	return nil
}

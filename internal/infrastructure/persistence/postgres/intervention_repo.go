package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edupredict/risk-monitor/internal/domain/intervention"
	"github.com/edupredict/risk-monitor/internal/domain/shared"
	"github.com/edupredict/risk-monitor/pkg/timeutil"
)

// InterventionRepository implements intervention.Store for PostgreSQL.
type InterventionRepository struct {
	conn Querier
}

func NewInterventionRepository(conn Querier) *InterventionRepository {
	return &InterventionRepository{conn: conn}
}

var _ intervention.Store = (*InterventionRepository)(nil)

const interventionColumns = `
	id, student_id, title, description, due_date, status, document, assigned_at, completed_at`

func (r *InterventionRepository) Create(ctx context.Context, iv *intervention.Intervention) error {
	due, err := dueDateArg(iv.DueDate)
	if err != nil {
		return err
	}

	_, err = r.conn.Exec(ctx, `
		INSERT INTO interventions (`+interventionColumns+`)
		VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $9)`,
		iv.ID,
		iv.StudentID,
		iv.Title,
		iv.Description,
		due,
		string(iv.Status),
		iv.Document,
		iv.AssignedAt,
		iv.CompletedAt,
	)
	if err != nil {
		switch {
		case IsUniqueViolation(err):
			return shared.NewDomainError("intervention", "Create", shared.ErrAlreadyExists, "intervention already exists: "+iv.ID)
		case IsForeignKeyViolation(err):
			return shared.ErrUnknownStudent.WithMessage("unknown student: " + iv.StudentID)
		}
		return fmt.Errorf("failed to create intervention: %w", err)
	}
	return nil
}

func (r *InterventionRepository) Get(ctx context.Context, id string) (*intervention.Intervention, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+interventionColumns+` FROM interventions WHERE id = $1`, id)
	iv, err := scanIntervention(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrInterventionNotFound.WithMessage("intervention not found: " + id)
		}
		return nil, fmt.Errorf("failed to get intervention: %w", err)
	}
	return iv, nil
}

func (r *InterventionRepository) List(ctx context.Context, filter intervention.ListFilter) ([]*intervention.Intervention, error) {
	where, args, err := listWhere(filter)
	if err != nil {
		return nil, err
	}

	rows, err := r.conn.Query(ctx, `
		SELECT `+interventionColumns+`
		FROM interventions`+where+`
		ORDER BY assigned_at DESC, id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list interventions: %w", err)
	}
	defer rows.Close()

	out := make([]*intervention.Intervention, 0)
	for rows.Next() {
		iv, err := scanIntervention(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan intervention: %w", err)
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

// Complete performs the Pending to Completed transition in a single
// conditional UPDATE, so concurrent callers see exactly one transition.
func (r *InterventionRepository) Complete(ctx context.Context, id string, at time.Time) (*intervention.Intervention, bool, error) {
	row := r.conn.QueryRow(ctx, `
		UPDATE interventions
		SET status = 'Completed', completed_at = $2
		WHERE id = $1 AND status = 'Pending'
		RETURNING `+interventionColumns, id, at)

	iv, err := scanIntervention(row)
	if err == nil {
		return iv, true, nil
	}
	if !IsNoRows(err) {
		return nil, false, fmt.Errorf("failed to complete intervention: %w", err)
	}

	existing, err := r.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *InterventionRepository) Counts(ctx context.Context) (intervention.Counts, error) {
	var c intervention.Counts
	err := r.conn.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE status = 'Pending'),
			count(*) FILTER (WHERE status = 'Completed')
		FROM interventions`).Scan(&c.Total, &c.Pending, &c.Completed)
	if err != nil {
		return intervention.Counts{}, fmt.Errorf("failed to count interventions: %w", err)
	}
	return c, nil
}

func listWhere(filter intervention.ListFilter) (string, []interface{}, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.StudentID != "" {
		add("student_id = $%d", filter.StudentID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.DueBefore != "" {
		if _, err := timeutil.ParseDate(filter.DueBefore); err != nil {
			return "", nil, shared.ErrInvalidAssignment.WithMessage("due_before must be YYYY-MM-DD")
		}
		add("due_date < $%d::date", filter.DueBefore)
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	return "\n\t\tWHERE " + strings.Join(conds, " AND "), args, nil
}

// dueDateArg passes the calendar date as text so no timezone conversion
// can shift the day.
func dueDateArg(due string) (*string, error) {
	if due == "" {
		return nil, nil
	}
	if _, err := timeutil.ParseDate(due); err != nil {
		return nil, shared.ErrInvalidAssignment.WithMessage("due_date must be YYYY-MM-DD")
	}
	return &due, nil
}

func scanIntervention(row pgx.Row) (*intervention.Intervention, error) {
	var (
		iv     intervention.Intervention
		due    *time.Time
		status string
	)
	err := row.Scan(
		&iv.ID,
		&iv.StudentID,
		&iv.Title,
		&iv.Description,
		&due,
		&status,
		&iv.Document,
		&iv.AssignedAt,
		&iv.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	iv.Status = intervention.Status(status)
	if due != nil {
		iv.DueDate = due.Format(timeutil.DateLayout)
	}
	return &iv, nil
}

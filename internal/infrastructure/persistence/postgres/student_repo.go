package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edupredict/risk-monitor/internal/domain/student"
	"github.com/edupredict/risk-monitor/pkg/retry"
)

// StudentRepository reads the students table. It is the registry's Source.
type StudentRepository struct {
	conn Querier
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(conn Querier) *StudentRepository {
	return &StudentRepository{conn: conn}
}

var _ student.Source = (*StudentRepository)(nil)

const studentColumns = `
	student_id, name, department, semester, attendance_percentage, sgpa,
	backlog_count, internal_marks, risk_score, updated_at`

// LoadAll returns every student row. Connection errors are marked retryable
// so the scheduled refresh can back off and try again.
func (r *StudentRepository) LoadAll(ctx context.Context) ([]student.Student, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+studentColumns+` FROM students ORDER BY student_id`)
	if err != nil {
		return nil, retry.Retryable(fmt.Errorf("failed to query students: %w", err))
	}

	out, err := pgx.CollectRows(rows, scanStudent)
	if err != nil {
		return nil, fmt.Errorf("failed to scan students: %w", err)
	}
	return out, nil
}

func scanStudent(row pgx.CollectableRow) (student.Student, error) {
	var s student.Student
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Department,
		&s.Semester,
		&s.AttendancePercentage,
		&s.SGPA,
		&s.BacklogCount,
		&s.InternalMarks,
		&s.RawRiskScore,
		&s.UpdatedAt,
	)
	return s, err
}

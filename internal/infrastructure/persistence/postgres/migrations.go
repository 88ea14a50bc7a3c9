package postgres

// GetMigrations returns the schema migrations in version order, plus the demo
// seed when seed is true.
func GetMigrations(seed bool) []Migration {
	migrations := []Migration{
		{Version: 1, Name: "create_students", UpSQL: migration001Up},
		{Version: 2, Name: "create_interventions", UpSQL: migration002Up},
		{Version: 3, Name: "create_risk_policies", UpSQL: migration003Up},
	}
	if seed {
		migrations = append(migrations, Migration{Version: 100, Name: "seed_demo_students", UpSQL: seedDemoUp})
	}
	return migrations
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

// Metric columns are unconstrained; out-of-range rows are rejected by the
// registry at load time instead of failing the import.
const migration001Up = `
CREATE TABLE IF NOT EXISTS students (
    student_id VARCHAR(50) PRIMARY KEY,
    name VARCHAR(255) NOT NULL DEFAULT '',
    department VARCHAR(100) NOT NULL DEFAULT '',
    semester INTEGER NOT NULL DEFAULT 0,
    attendance_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
    sgpa DOUBLE PRECISION NOT NULL DEFAULT 0,
    backlog_count INTEGER NOT NULL DEFAULT 0,
    internal_marks DOUBLE PRECISION NOT NULL DEFAULT 0,
    risk_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_students_department ON students(department);

CREATE OR REPLACE FUNCTION update_updated_at_column()
RETURNS TRIGGER AS $$
BEGIN
    NEW.updated_at = NOW();
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_students_updated_at ON students;
CREATE TRIGGER trg_students_updated_at
    BEFORE UPDATE ON students
    FOR EACH ROW EXECUTE FUNCTION update_updated_at_column();
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: INTERVENTIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS interventions (
    id VARCHAR(64) PRIMARY KEY,
    student_id VARCHAR(50) NOT NULL REFERENCES students(student_id) ON DELETE RESTRICT,
    title VARCHAR(255) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    due_date DATE,
    status VARCHAR(20) NOT NULL DEFAULT 'Pending',
    document VARCHAR(255) NOT NULL DEFAULT '',
    assigned_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_status CHECK (status IN ('Pending', 'Completed')),
    CONSTRAINT completed_has_time CHECK ((status = 'Completed') = (completed_at IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_interventions_student ON interventions(student_id, assigned_at DESC);
CREATE INDEX IF NOT EXISTS idx_interventions_pending_due ON interventions(due_date) WHERE status = 'Pending';
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: RISK POLICIES
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS risk_policies (
    version BIGINT PRIMARY KEY,
    thresholds JSONB NOT NULL,
    updated_by VARCHAR(100) NOT NULL DEFAULT '',
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT positive_version CHECK (version > 0)
);
`

// ══════════════════════════════════════════════════════════════════════════════
// DEMO SEED
// ══════════════════════════════════════════════════════════════════════════════

const seedDemoUp = `
INSERT INTO students (student_id, name, department, semester, attendance_percentage, sgpa, backlog_count, internal_marks, risk_score) VALUES
    ('CS2021001', 'Aarav Sharma', 'Computer Science', 5, 92.5, 8.4, 0, 26, 12),
    ('CS2021002', 'Diya Patel', 'Computer Science', 5, 61.0, 5.2, 3, 11, 82),
    ('CS2021003', 'Kabir Singh', 'Computer Science', 5, 70.5, 6.8, 1, 17, 48),
    ('EC2021004', 'Ananya Iyer', 'Electronics', 3, 88.0, 5.6, 2, 14, 55),
    ('EC2021005', 'Rohan Gupta', 'Electronics', 3, 95.0, 9.1, 0, 28, 6),
    ('ME2021006', 'Meera Nair', 'Mechanical', 7, 58.5, 4.9, 4, 9, 91),
    ('ME2021007', 'Vivaan Reddy', 'Mechanical', 7, 79.0, 7.0, 0, 20, 35),
    ('CV2021008', 'Isha Verma', 'Civil', 1, 83.5, 7.6, 0, 22, 28)
ON CONFLICT (student_id) DO NOTHING;
`

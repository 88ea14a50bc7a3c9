package memory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/edupredict/risk-monitor/internal/domain/student"
)

type studentRow struct {
	ID                   string  `yaml:"student_id"`
	Name                 string  `yaml:"name"`
	Department           string  `yaml:"department"`
	Semester             int     `yaml:"semester"`
	AttendancePercentage float64 `yaml:"attendance_percentage"`
	SGPA                 float64 `yaml:"sgpa"`
	BacklogCount         int     `yaml:"backlog_count"`
	InternalMarks        float64 `yaml:"internal_marks"`
	RiskScore            float64 `yaml:"risk_score"`
}

// FileSource reads students from a YAML file on every load, so edits to the
// file show up at the next registry refresh.
//
//	students:
//	  - student_id: CS2021001
//	    name: Aarav Sharma
//	    attendance_percentage: 92.5
//	    sgpa: 8.4
//	    risk_score: 12
type FileSource struct {
	path string
	mu   sync.Mutex
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) LoadAll(ctx context.Context) ([]student.Student, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read students file: %w", err)
	}

	var doc struct {
		Students []studentRow `yaml:"students"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse students file %s: %w", s.path, err)
	}

	out := make([]student.Student, 0, len(doc.Students))
	for _, r := range doc.Students {
		out = append(out, student.Student{
			ID:                   r.ID,
			Name:                 r.Name,
			Department:           r.Department,
			Semester:             r.Semester,
			AttendancePercentage: r.AttendancePercentage,
			SGPA:                 r.SGPA,
			BacklogCount:         r.BacklogCount,
			InternalMarks:        r.InternalMarks,
			RawRiskScore:         r.RiskScore,
		})
	}
	return out, nil
}

// DemoStudents is the cohort used when no database is configured. It matches
// the development seed migration.
func DemoStudents() student.StaticSource {
	return student.StaticSource{
		{ID: "CS2021001", Name: "Aarav Sharma", Department: "Computer Science", Semester: 5, AttendancePercentage: 92.5, SGPA: 8.4, InternalMarks: 26, RawRiskScore: 12},
		{ID: "CS2021002", Name: "Diya Patel", Department: "Computer Science", Semester: 5, AttendancePercentage: 61.0, SGPA: 5.2, BacklogCount: 3, InternalMarks: 11, RawRiskScore: 82},
		{ID: "CS2021003", Name: "Kabir Singh", Department: "Computer Science", Semester: 5, AttendancePercentage: 70.5, SGPA: 6.8, BacklogCount: 1, InternalMarks: 17, RawRiskScore: 48},
		{ID: "EC2021004", Name: "Ananya Iyer", Department: "Electronics", Semester: 3, AttendancePercentage: 88.0, SGPA: 5.6, BacklogCount: 2, InternalMarks: 14, RawRiskScore: 55},
		{ID: "EC2021005", Name: "Rohan Gupta", Department: "Electronics", Semester: 3, AttendancePercentage: 95.0, SGPA: 9.1, InternalMarks: 28, RawRiskScore: 6},
		{ID: "ME2021006", Name: "Meera Nair", Department: "Mechanical", Semester: 7, AttendancePercentage: 58.5, SGPA: 4.9, BacklogCount: 4, InternalMarks: 9, RawRiskScore: 91},
		{ID: "ME2021007", Name: "Vivaan Reddy", Department: "Mechanical", Semester: 7, AttendancePercentage: 79.0, SGPA: 7.0, InternalMarks: 20, RawRiskScore: 35},
		{ID: "CV2021008", Name: "Isha Verma", Department: "Civil", Semester: 1, AttendancePercentage: 83.5, SGPA: 7.6, InternalMarks: 22, RawRiskScore: 28},
	}
}

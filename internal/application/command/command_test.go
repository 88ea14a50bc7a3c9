package command

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupredict/risk-monitor/internal/domain/intervention"
	"github.com/edupredict/risk-monitor/internal/domain/risk"
	"github.com/edupredict/risk-monitor/internal/domain/shared"
	"github.com/edupredict/risk-monitor/internal/domain/student"
	"github.com/edupredict/risk-monitor/internal/infrastructure/persistence/memory"
)

type fakeDocuments struct {
	mu      sync.Mutex
	saved   map[string]string
	deleted []string
	saveErr error
}

func newFakeDocuments() *fakeDocuments {
	return &fakeDocuments{saved: make(map[string]string)}
}

func (f *fakeDocuments) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	handle := "doc-" + name
	f.saved[handle] = string(b)
	return handle, nil
}

func (f *fakeDocuments) Open(ctx context.Context, handle string) (io.ReadCloser, intervention.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.saved[handle]
	if !ok {
		return nil, intervention.Document{}, shared.ErrDocumentNotFound
	}
	return io.NopCloser(strings.NewReader(body)), intervention.Document{Handle: handle, Size: int64(len(body))}, nil
}

func (f *fakeDocuments) Delete(ctx context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.saved, handle)
	f.deleted = append(f.deleted, handle)
	return nil
}

type switchSource struct {
	mu   sync.Mutex
	rows []student.Student
	err  error
}

func (s *switchSource) LoadAll(ctx context.Context) ([]student.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]student.Student, len(s.rows))
	copy(out, s.rows)
	return out, nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *capturePublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func fixture(t *testing.T) (*student.Registry, *risk.PolicyStore, *switchSource) {
	t.Helper()
	policies, err := risk.NewPolicyStore(risk.DefaultThresholds(), nil, nil)
	require.NoError(t, err)

	src := &switchSource{rows: []student.Student{
		{ID: "S-001", Name: "Ravi", AttendancePercentage: 60, SGPA: 5.5, RawRiskScore: 50},
		{ID: "S-002", Name: "Asha", AttendancePercentage: 95, SGPA: 8.4, RawRiskScore: 10},
	}}
	reg := student.NewRegistry(src, policies)
	_, err = reg.Refresh(context.Background())
	require.NoError(t, err)
	return reg, policies, src
}

func TestAssignIntervention_WithDocument(t *testing.T) {
	reg, _, _ := fixture(t)
	docs := newFakeDocuments()
	h := NewAssignInterventionHandler(intervention.NewLedger(memory.NewInterventionStore(), reg, nil), docs, nil)

	iv, err := h.Handle(context.Background(), AssignInterventionCommand{
		StudentID: "S-001",
		Title:     "Remedial maths",
		DueDate:   "2026-12-01",
		Document:  &Upload{Filename: "plan.pdf", Content: strings.NewReader("%PDF-1.4")},
	})
	require.NoError(t, err)
	assert.Equal(t, "doc-plan.pdf", iv.Document)
	assert.Equal(t, "%PDF-1.4", docs.saved["doc-plan.pdf"])
}

func TestAssignIntervention_UnknownStudentStoresNothing(t *testing.T) {
	reg, _, _ := fixture(t)
	docs := newFakeDocuments()
	ledger := intervention.NewLedger(memory.NewInterventionStore(), reg, nil)
	h := NewAssignInterventionHandler(ledger, docs, nil)

	_, err := h.Handle(context.Background(), AssignInterventionCommand{
		StudentID: "S-404",
		Title:     "Remedial maths",
		Document:  &Upload{Filename: "plan.pdf", Content: strings.NewReader("x")},
	})
	assert.ErrorIs(t, err, shared.ErrUnknownStudent)
	assert.Empty(t, docs.saved)

	all, err := ledger.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAssignIntervention_ValidationErrors(t *testing.T) {
	reg, _, _ := fixture(t)
	h := NewAssignInterventionHandler(intervention.NewLedger(memory.NewInterventionStore(), reg, nil), nil, nil)

	_, err := h.Handle(context.Background(), AssignInterventionCommand{StudentID: "S-001", Title: "x", DueDate: "tomorrow"})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "DueDate", verr.Fields[0].Field)

	_, err = h.Handle(context.Background(), AssignInterventionCommand{StudentID: "S-001", Title: strings.Repeat("a", 201)})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = h.Handle(context.Background(), AssignInterventionCommand{
		StudentID: "S-001",
		Title:     "x",
		Document:  &Upload{Filename: "a.pdf", Content: strings.NewReader("x")},
	})
	assert.ErrorIs(t, err, shared.ErrInvalidAssignment)
}

func TestAssignIntervention_SaveFailure(t *testing.T) {
	reg, _, _ := fixture(t)
	docs := newFakeDocuments()
	docs.saveErr = errors.New("disk full")
	h := NewAssignInterventionHandler(intervention.NewLedger(memory.NewInterventionStore(), reg, nil), docs, nil)

	_, err := h.Handle(context.Background(), AssignInterventionCommand{
		StudentID: "S-001",
		Title:     "x",
		Document:  &Upload{Filename: "a.pdf", Content: strings.NewReader("x")},
	})
	assert.EqualError(t, err, "disk full")
}

func TestUpdateInterventionStatus(t *testing.T) {
	reg, _, _ := fixture(t)
	ledger := intervention.NewLedger(memory.NewInterventionStore(), reg, nil)
	iv, err := ledger.Assign(context.Background(), intervention.AssignInput{StudentID: "S-001", Title: "x"})
	require.NoError(t, err)

	h := NewUpdateInterventionStatusHandler(ledger, nil)

	done, err := h.Handle(context.Background(), UpdateInterventionStatusCommand{InterventionID: iv.ID, Status: "Completed"})
	require.NoError(t, err)
	assert.Equal(t, intervention.StatusCompleted, done.Status)

	_, err = h.Handle(context.Background(), UpdateInterventionStatusCommand{InterventionID: iv.ID, Status: "Pending"})
	assert.ErrorIs(t, err, shared.ErrReopenNotAllowed)

	_, err = h.Handle(context.Background(), UpdateInterventionStatusCommand{InterventionID: iv.ID, Status: "In Progress"})
	assert.ErrorIs(t, err, shared.ErrInvalidStatus)

	_, err = h.Handle(context.Background(), UpdateInterventionStatusCommand{InterventionID: "nope", Status: "Completed"})
	assert.ErrorIs(t, err, shared.ErrInterventionNotFound)
}

func TestUpdateThresholds_ReclassifiesRegistry(t *testing.T) {
	reg, policies, _ := fixture(t)
	h := NewUpdateThresholdsHandler(policies, reg, nil)

	before, err := reg.ByRiskTier(risk.TierHigh)
	require.NoError(t, err)
	require.Len(t, before, 1)

	th := risk.DefaultThresholds()
	th.HighRiskScore = 5
	th.MediumBand = 0
	res, err := h.Handle(context.Background(), UpdateThresholdsCommand{Thresholds: th, UpdatedBy: "dean"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Policy.Version)
	assert.Equal(t, "dean", res.Policy.UpdatedBy)
	assert.Equal(t, uint64(2), res.Snapshot.Version)

	after, err := reg.ByRiskTier(risk.TierHigh)
	require.NoError(t, err)
	assert.Len(t, after, 2)
}

func TestUpdateThresholds_InvalidLeavesPolicy(t *testing.T) {
	reg, policies, _ := fixture(t)
	h := NewUpdateThresholdsHandler(policies, reg, nil)

	th := risk.DefaultThresholds()
	th.LowAttendance = 140
	_, err := h.Handle(context.Background(), UpdateThresholdsCommand{Thresholds: th})
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Equal(t, int64(0), policies.Policy().Version)
	assert.Equal(t, uint64(1), reg.Snapshot().Version())
}

func TestRefreshRegistry(t *testing.T) {
	reg, _, src := fixture(t)
	pub := &capturePublisher{}
	h := NewRefreshRegistryHandler(reg, pub, nil)

	src.mu.Lock()
	src.rows = append(src.rows, student.Student{ID: "S-003", AttendancePercentage: 101})
	src.mu.Unlock()

	stats, err := h.Handle(context.Background(), RefreshRegistryCommand{Broadcast: true, Trigger: "test"})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Accepted)
	require.Len(t, stats.Rejected, 1)
	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventRegistryRefreshed, pub.events[0].EventType())

	src.mu.Lock()
	src.err = errors.New("db down")
	src.mu.Unlock()
	_, err = h.Handle(context.Background(), RefreshRegistryCommand{Broadcast: true})
	assert.Error(t, err)
	assert.Len(t, pub.events, 1)
}

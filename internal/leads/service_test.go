package leads

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	advisorrepo "leadflow_backend/internal/advisors/repository"
	"leadflow_backend/internal/assignment"
	assignmentrepo "leadflow_backend/internal/assignment/repository"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/scoring"
	scorerepo "leadflow_backend/internal/scoring/repository"
	"leadflow_backend/internal/sla"
	slarepo "leadflow_backend/internal/sla/repository"
	timelinerepo "leadflow_backend/internal/timeline/repository"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/keymutex"
	"leadflow_backend/platform/logger"
)

type fakeLeadRepo struct {
	leads            map[uuid.UUID]*repository.Lead
	failStatusUpdate bool
}

func newFakeLeadRepo() *fakeLeadRepo {
	return &fakeLeadRepo{leads: make(map[uuid.UUID]*repository.Lead)}
}

func (f *fakeLeadRepo) Create(_ context.Context, params repository.CreateLeadParams) (repository.Lead, error) {
	lead := &repository.Lead{
		ID:        uuid.New(),
		Phone:     params.Phone,
		Name:      params.Name,
		Status:    domain.StatusNuevo,
		CreatedAt: time.Now(),
	}
	f.leads[lead.ID] = lead
	return *lead, nil
}

func (f *fakeLeadRepo) GetByID(_ context.Context, id uuid.UUID) (repository.Lead, error) {
	lead, ok := f.leads[id]
	if !ok {
		return repository.Lead{}, repository.ErrNotFound
	}
	return *lead, nil
}

func (f *fakeLeadRepo) GetByPhone(_ context.Context, phone string) (repository.Lead, error) {
	var newest *repository.Lead
	for _, lead := range f.leads {
		if lead.Phone == phone && (newest == nil || lead.CreatedAt.After(newest.CreatedAt)) {
			newest = lead
		}
	}
	if newest == nil {
		return repository.Lead{}, repository.ErrNotFound
	}
	return *newest, nil
}

func (f *fakeLeadRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.Status) (repository.Lead, error) {
	if f.failStatusUpdate {
		return repository.Lead{}, errors.New("status write rejected")
	}
	lead, ok := f.leads[id]
	if !ok {
		return repository.Lead{}, repository.ErrNotFound
	}
	lead.Status = status
	return *lead, nil
}

func (f *fakeLeadRepo) SetPendingDistribution(_ context.Context, id uuid.UUID, pending bool) error {
	lead, ok := f.leads[id]
	if !ok {
		return repository.ErrNotFound
	}
	lead.PendingDistribution = pending
	return nil
}

func (f *fakeLeadRepo) ListPendingDistribution(_ context.Context, limit int) ([]repository.Lead, error) {
	out := make([]repository.Lead, 0)
	for _, lead := range f.leads {
		if lead.PendingDistribution && !lead.FrozenForReview && len(out) < limit {
			out = append(out, *lead)
		}
	}
	return out, nil
}

func (f *fakeLeadRepo) FreezeForReview(_ context.Context, id uuid.UUID) error {
	lead, ok := f.leads[id]
	if !ok {
		return repository.ErrNotFound
	}
	lead.FrozenForReview = true
	return nil
}

// fakeTimeline backs both the pipeline's audit trail and the watchdog's
// contact-attempt query, the way the real table does.
type fakeTimeline struct {
	records []timelinerepo.RecordParams
	notes   []timelinerepo.Note
}

func (f *fakeTimeline) Record(_ context.Context, params timelinerepo.RecordParams) error {
	f.records = append(f.records, params)
	return nil
}

func (f *fakeTimeline) ListForLead(_ context.Context, leadID uuid.UUID, limit int) ([]timelinerepo.Event, error) {
	out := make([]timelinerepo.Event, 0)
	for _, r := range f.records {
		if r.LeadID == leadID && len(out) < limit {
			out = append(out, timelinerepo.Event{
				LeadID: r.LeadID, AdvisorID: r.AdvisorID, Type: r.Type, Payload: r.Payload,
			})
		}
	}
	return out, nil
}

func (f *fakeTimeline) AddNote(_ context.Context, leadID uuid.UUID, author, body string) (timelinerepo.Note, error) {
	note := timelinerepo.Note{ID: uuid.New(), LeadID: leadID, Author: author, Body: body}
	f.notes = append(f.notes, note)
	return note, nil
}

func (f *fakeTimeline) ListNotes(_ context.Context, leadID uuid.UUID, limit int) ([]timelinerepo.Note, error) {
	out := make([]timelinerepo.Note, 0)
	for _, n := range f.notes {
		if n.LeadID == leadID && len(out) < limit {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeTimeline) HasContactAttemptSince(_ context.Context, leadID, advisorID uuid.UUID, _ time.Time) (bool, error) {
	for _, r := range f.records {
		if r.LeadID == leadID && r.AdvisorID != nil && *r.AdvisorID == advisorID &&
			r.Type == timelinerepo.EventContactAttempt {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTimeline) countType(leadID uuid.UUID, eventType string) int {
	count := 0
	for _, r := range f.records {
		if r.LeadID == leadID && r.Type == eventType {
			count++
		}
	}
	return count
}

type fakeAssignRepo struct {
	assignments []assignmentrepo.Assignment
}

func (f *fakeAssignRepo) Create(_ context.Context, params assignmentrepo.CreateParams) (assignmentrepo.Assignment, error) {
	for _, a := range f.assignments {
		if a.LeadID == params.LeadID && a.EndedAt == nil {
			return assignmentrepo.Assignment{}, assignmentrepo.ErrOpenAssignmentExists
		}
	}
	created := assignmentrepo.Assignment{
		ID:         uuid.New(),
		LeadID:     params.LeadID,
		AdvisorID:  params.AdvisorID,
		Source:     params.Source,
		AssignedAt: time.Now(),
	}
	f.assignments = append(f.assignments, created)
	return created, nil
}

func (f *fakeAssignRepo) FindActive(_ context.Context, leadID uuid.UUID) (*assignmentrepo.Assignment, error) {
	for i := range f.assignments {
		if f.assignments[i].LeadID == leadID && f.assignments[i].EndedAt == nil {
			return &f.assignments[i], nil
		}
	}
	return nil, nil
}

func (f *fakeAssignRepo) CloseActive(_ context.Context, leadID uuid.UUID) (*assignmentrepo.Assignment, error) {
	for i := range f.assignments {
		if f.assignments[i].LeadID == leadID && f.assignments[i].EndedAt == nil {
			now := time.Now()
			f.assignments[i].EndedAt = &now
			return &f.assignments[i], nil
		}
	}
	return nil, nil
}

// CountsCreatedToday makes the repo double as the selector's counter.
func (f *fakeAssignRepo) CountsCreatedToday(context.Context) (map[uuid.UUID]int, int, error) {
	counts := make(map[uuid.UUID]int)
	total := 0
	for _, a := range f.assignments {
		counts[a.AdvisorID]++
		total++
	}
	return counts, total, nil
}

func (f *fakeAssignRepo) openFor(leadID uuid.UUID) []assignmentrepo.Assignment {
	out := make([]assignmentrepo.Assignment, 0)
	for _, a := range f.assignments {
		if a.LeadID == leadID && a.EndedAt == nil {
			out = append(out, a)
		}
	}
	return out
}

type fakeDirectory struct {
	advisors []advisorrepo.Advisor
}

func (f *fakeDirectory) ListAvailable(context.Context) ([]advisorrepo.Advisor, error) {
	out := make([]advisorrepo.Advisor, len(f.advisors))
	copy(out, f.advisors)
	return out, nil
}

type fakeScoreLedger struct {
	entries []scorerepo.Entry
}

func (f *fakeScoreLedger) InsertWithIncrement(_ context.Context, params scorerepo.InsertParams) (scorerepo.Entry, error) {
	entry := scorerepo.Entry{
		ID:        uuid.New(),
		AdvisorID: params.AdvisorID,
		LeadID:    params.LeadID,
		Points:    params.Points,
		Reason:    params.Reason,
		CreatedAt: time.Now(),
	}
	f.entries = append(f.entries, entry)
	return entry, nil
}

func (f *fakeScoreLedger) TotalInRange(_ context.Context, advisorID uuid.UUID, from, to time.Time) (int, error) {
	total := 0
	for _, e := range f.entries {
		if e.AdvisorID == advisorID && !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			total += e.Points
		}
	}
	return total, nil
}

func (f *fakeScoreLedger) TotalByReasonPrefixInRange(context.Context, uuid.UUID, string, time.Time, time.Time) (int, error) {
	return 0, nil
}

func (f *fakeScoreLedger) pointsFor(advisorID uuid.UUID) int {
	total := 0
	for _, e := range f.entries {
		if e.AdvisorID == advisorID {
			total += e.Points
		}
	}
	return total
}

type fakeSlaJobRepo struct {
	jobs        map[uuid.UUID]*slarepo.Job
	order       []uuid.UUID
	completeErr error
}

func newFakeSlaJobRepo() *fakeSlaJobRepo {
	return &fakeSlaJobRepo{jobs: make(map[uuid.UUID]*slarepo.Job)}
}

func (f *fakeSlaJobRepo) Create(_ context.Context, params slarepo.CreateParams) (slarepo.Job, error) {
	for _, id := range f.order {
		j := f.jobs[id]
		if j.LeadID == params.LeadID && j.Status == slarepo.StatusPending {
			return slarepo.Job{}, slarepo.ErrPendingJobExists
		}
	}
	job := &slarepo.Job{
		ID:                uuid.New(),
		LeadID:            params.LeadID,
		AdvisorID:         params.AdvisorID,
		DueAt:             params.DueAt,
		ReassignmentCount: params.ReassignmentCount,
		Status:            slarepo.StatusPending,
		CreatedAt:         time.Now(),
	}
	f.jobs[job.ID] = job
	f.order = append(f.order, job.ID)
	return *job, nil
}

func (f *fakeSlaJobRepo) GetByID(_ context.Context, id uuid.UUID) (slarepo.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return slarepo.Job{}, slarepo.ErrNotFound
	}
	return *job, nil
}

func (f *fakeSlaJobRepo) MarkFailed(_ context.Context, id uuid.UUID) (bool, error) {
	job, ok := f.jobs[id]
	if !ok || job.Status != slarepo.StatusPending {
		return false, nil
	}
	job.Status = slarepo.StatusFailed
	return true, nil
}

func (f *fakeSlaJobRepo) CompletePending(_ context.Context, leadID uuid.UUID) (*slarepo.Job, error) {
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	for _, id := range f.order {
		j := f.jobs[id]
		if j.LeadID == leadID && j.Status == slarepo.StatusPending {
			j.Status = slarepo.StatusCompleted
			copied := *j
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeSlaJobRepo) LatestForLead(_ context.Context, leadID uuid.UUID) (*slarepo.Job, error) {
	for i := len(f.order) - 1; i >= 0; i-- {
		j := f.jobs[f.order[i]]
		if j.LeadID == leadID {
			copied := *j
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeSlaJobRepo) ListOverduePending(_ context.Context, limit int) ([]slarepo.Job, error) {
	now := time.Now()
	var overdue []slarepo.Job
	for _, id := range f.order {
		j := f.jobs[id]
		if j.Status == slarepo.StatusPending && !j.DueAt.After(now) {
			overdue = append(overdue, *j)
			if len(overdue) == limit {
				break
			}
		}
	}
	return overdue, nil
}

func (f *fakeSlaJobRepo) pendingForLead(leadID uuid.UUID) *slarepo.Job {
	for _, id := range f.order {
		j := f.jobs[id]
		if j.LeadID == leadID && j.Status == slarepo.StatusPending {
			return j
		}
	}
	return nil
}

type fakeCheckScheduler struct{}

func (fakeCheckScheduler) ScheduleCheck(context.Context, uuid.UUID, uuid.UUID, uuid.UUID, time.Time) error {
	return nil
}
func (fakeCheckScheduler) CancelCheck(context.Context, uuid.UUID) error { return nil }

type fakeAdvisorNotifier struct{}

func (fakeAdvisorNotifier) NotifyAdvisor(context.Context, uuid.UUID, string) error { return nil }

type fakeSummarizer struct{}

func (fakeSummarizer) SummarizeLead(_ context.Context, lead repository.Lead, _ []timelinerepo.Event) (string, error) {
	return "Resumen de " + lead.Name, nil
}

type nopBus struct{}

func (nopBus) Publish(context.Context, events.Event)           {}
func (nopBus) PublishSync(context.Context, events.Event) error { return nil }
func (nopBus) Subscribe(string, events.Handler)                {}

// pipelineFixture wires the real pipeline, assignment, scoring, and watchdog
// services over in-memory persistence.
type pipelineFixture struct {
	svc       *Service
	watchdog  *sla.Service
	leadRepo  *fakeLeadRepo
	assigns   *fakeAssignRepo
	jobs      *fakeSlaJobRepo
	ledger    *fakeScoreLedger
	timeline  *fakeTimeline
	directory *fakeDirectory
}

func newPipeline(advisors ...advisorrepo.Advisor) *pipelineFixture {
	log := logger.New("development")
	locks := keymutex.New()
	bus := nopBus{}

	fx := &pipelineFixture{
		leadRepo:  newFakeLeadRepo(),
		assigns:   &fakeAssignRepo{},
		jobs:      newFakeSlaJobRepo(),
		ledger:    &fakeScoreLedger{},
		timeline:  &fakeTimeline{},
		directory: &fakeDirectory{advisors: advisors},
	}

	scores := scoring.New(fx.ledger, 100, log)
	selector := assignment.NewSelector(fx.directory, fx.assigns, scores, log)
	ledgerSvc := assignment.NewService(fx.assigns, selector, fx.leadRepo, fx.timeline, bus, log)

	fx.watchdog = sla.NewService(
		fx.jobs, fx.leadRepo, fx.leadRepo, scores, ledgerSvc,
		fx.timeline, fakeAdvisorNotifier{}, fakeCheckScheduler{},
		locks, bus,
		sla.Config{Window: 15 * time.Minute, MaxReassignments: 2},
		log,
	)

	fx.svc = NewService(
		fx.leadRepo, ledgerSvc, selector, fx.watchdog, scores,
		fx.timeline, fakeSummarizer{}, locks, bus, log,
	)
	return fx
}

func availableAdvisor(name string) advisorrepo.Advisor {
	return advisorrepo.Advisor{ID: uuid.New(), Name: name, Status: advisorrepo.StatusAvailable}
}

func (fx *pipelineFixture) qualifiedLead(t *testing.T) repository.Lead {
	t.Helper()
	lead, err := fx.svc.Create(context.Background(), "+525512345678", "Ana")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if lead.Status != domain.StatusNuevo {
		t.Fatalf("new lead should be NUEVO, got %s", lead.Status)
	}
	lead, err = fx.svc.Qualify(context.Background(), lead.ID)
	if err != nil {
		t.Fatalf("Qualify returned error: %v", err)
	}
	return lead
}

func TestIntakeIsIdempotentPerPhone(t *testing.T) {
	fx := newPipeline()

	first, err := fx.svc.Create(context.Background(), "55 1234 5678", "Ana")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if first.Phone != "+525512345678" {
		t.Fatalf("phone should normalize to E.164, got %s", first.Phone)
	}

	second, err := fx.svc.Create(context.Background(), "+52 55 1234 5678", "Ana")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if second.ID != first.ID {
		t.Fatal("repeat intake for a live lead must return the existing lead")
	}
}

func TestInvalidTransitionIsRejected(t *testing.T) {
	fx := newPipeline()
	lead, err := fx.svc.Create(context.Background(), "+525512345678", "Ana")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	_, err = fx.svc.Contacted(context.Background(), lead.ID, uuid.New())
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("NUEVO lead cannot be contacted, got %v", err)
	}

	var invalid *domain.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatal("the typed transition error must survive wrapping")
	}
	if got, err := fx.svc.Get(context.Background(), lead.ID); err != nil || got.Status != domain.StatusNuevo {
		t.Fatalf("rejected command must not change status, got %s (%v)", got.Status, err)
	}
}

func TestAssignRollsBackAssignmentWhenStatusWriteFails(t *testing.T) {
	advisor := availableAdvisor("a")
	fx := newPipeline(advisor)
	lead := fx.qualifiedLead(t)

	fx.leadRepo.failStatusUpdate = true
	_, err := fx.svc.Assign(context.Background(), lead.ID, &advisor.ID, assignment.SourceManual)
	if err == nil {
		t.Fatal("expected the command to fail")
	}
	if open := fx.assigns.openFor(lead.ID); len(open) != 0 {
		t.Fatalf("failed transition must not leave an open assignment, got %d", len(open))
	}
}

func TestAssignWithoutAdvisorParksLead(t *testing.T) {
	fx := newPipeline()
	lead := fx.qualifiedLead(t)

	created, err := fx.svc.Assign(context.Background(), lead.ID, nil, assignment.SourceSystem)
	if err != nil {
		t.Fatalf("no-advisor assignment must not error: %v", err)
	}
	if created != nil {
		t.Fatal("expected no assignment")
	}

	got, err := fx.svc.Get(context.Background(), lead.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !got.PendingDistribution {
		t.Fatal("lead should be parked for distribution")
	}
	if got.Status != domain.StatusPrecalificado {
		t.Fatalf("parked lead keeps its status, got %s", got.Status)
	}

	// An advisor comes online; the periodic distribution pass picks the
	// lead back up.
	advisor := availableAdvisor("a")
	fx.directory.advisors = append(fx.directory.advisors, advisor)

	assigned, err := fx.svc.DistributePending(context.Background(), 10)
	if err != nil {
		t.Fatalf("DistributePending returned error: %v", err)
	}
	if assigned != 1 {
		t.Fatalf("expected one distributed lead, got %d", assigned)
	}

	got, _ = fx.svc.Get(context.Background(), lead.ID)
	if got.PendingDistribution || got.Status != domain.StatusAsignado {
		t.Fatalf("distributed lead should be ASIGNADO and unparked, got %s parked=%v",
			got.Status, got.PendingDistribution)
	}
	if fx.jobs.pendingForLead(lead.ID) == nil {
		t.Fatal("distribution must start a response-window watch")
	}
}

func TestContactedAwardsFullPointsOnTime(t *testing.T) {
	advisor := availableAdvisor("a")
	fx := newPipeline(advisor)
	lead := fx.qualifiedLead(t)

	if _, err := fx.svc.Assign(context.Background(), lead.ID, &advisor.ID, assignment.SourceManual); err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}

	updated, err := fx.svc.Contacted(context.Background(), lead.ID, advisor.ID)
	if err != nil {
		t.Fatalf("Contacted returned error: %v", err)
	}
	if updated.Status != domain.StatusContactado {
		t.Fatalf("expected CONTACTADO, got %s", updated.Status)
	}
	if got := fx.ledger.pointsFor(advisor.ID); got != 2 {
		t.Fatalf("on-time contact is worth 2 points, got %d", got)
	}
	if fx.jobs.pendingForLead(lead.ID) != nil {
		t.Fatal("contact must complete the pending watch")
	}
}

func TestLateContactAfterFailedWindowAwardsOnePoint(t *testing.T) {
	// A single advisor means the failed window cannot reassign; the lead is
	// parked, stays ASIGNADO, and the advisor eventually self-corrects.
	advisor := availableAdvisor("only")
	fx := newPipeline(advisor)
	lead := fx.qualifiedLead(t)

	if _, err := fx.svc.Assign(context.Background(), lead.ID, &advisor.ID, assignment.SourceManual); err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}
	job := fx.jobs.pendingForLead(lead.ID)
	if err := fx.watchdog.OnDue(context.Background(), job.ID); err != nil {
		t.Fatalf("OnDue returned error: %v", err)
	}

	if _, err := fx.svc.Contacted(context.Background(), lead.ID, advisor.ID); err != nil {
		t.Fatalf("Contacted returned error: %v", err)
	}

	// -5 missed-window penalty, then +1 for the late contact.
	if got := fx.ledger.pointsFor(advisor.ID); got != -4 {
		t.Fatalf("expected -5 + 1 = -4 points, got %d", got)
	}
}

// When the watch cannot be resolved the contact must still land, but with
// the late bonus, never the on-time one.
func TestContactedAwardsLatePointsWhenWatchUnresolved(t *testing.T) {
	advisor := availableAdvisor("a")
	fx := newPipeline(advisor)
	lead := fx.qualifiedLead(t)

	if _, err := fx.svc.Assign(context.Background(), lead.ID, &advisor.ID, assignment.SourceManual); err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}

	fx.jobs.completeErr = errors.New("job store unavailable")
	updated, err := fx.svc.Contacted(context.Background(), lead.ID, advisor.ID)
	if err != nil {
		t.Fatalf("Contacted returned error: %v", err)
	}
	if updated.Status != domain.StatusContactado {
		t.Fatalf("expected CONTACTADO, got %s", updated.Status)
	}
	if got := fx.ledger.pointsFor(advisor.ID); got != 1 {
		t.Fatalf("unresolved watch must score the late bonus, got %d", got)
	}
}

// Full funnel walk: intake, qualification, assignment with watch, missed
// window, penalty, and reassignment to a second advisor.
func TestPipelineEndToEnd(t *testing.T) {
	first := availableAdvisor("first")
	second := availableAdvisor("second")
	fx := newPipeline(first, second)
	ctx := context.Background()

	lead := fx.qualifiedLead(t)
	if lead.Status != domain.StatusPrecalificado {
		t.Fatalf("expected PRECALIFICADO, got %s", lead.Status)
	}

	created, err := fx.svc.Assign(ctx, lead.ID, &first.ID, assignment.SourceManual)
	if err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}
	if created.AdvisorID != first.ID {
		t.Fatal("explicit assignment must honor the requested advisor")
	}

	got, _ := fx.svc.Get(ctx, lead.ID)
	if got.Status != domain.StatusAsignado {
		t.Fatalf("expected ASIGNADO, got %s", got.Status)
	}
	if open := fx.assigns.openFor(lead.ID); len(open) != 1 || open[0].AdvisorID != first.ID {
		t.Fatalf("expected one open assignment to the first advisor, got %+v", open)
	}

	job := fx.jobs.pendingForLead(lead.ID)
	if job == nil {
		t.Fatal("assignment must start a pending watch")
	}
	if due := time.Until(job.DueAt); due < 14*time.Minute || due > 16*time.Minute {
		t.Fatalf("watch should be due one window out, got %s", due)
	}

	// No contact before the deadline.
	if err := fx.watchdog.OnDue(ctx, job.ID); err != nil {
		t.Fatalf("OnDue returned error: %v", err)
	}

	if fx.jobs.jobs[job.ID].Status != slarepo.StatusFailed {
		t.Fatalf("job should be FAILED, got %s", fx.jobs.jobs[job.ID].Status)
	}
	if got := fx.ledger.pointsFor(first.ID); got != -5 {
		t.Fatalf("no contact attempt means a -5 penalty, got %d", got)
	}

	open := fx.assigns.openFor(lead.ID)
	if len(open) != 1 || open[0].AdvisorID != second.ID {
		t.Fatalf("lead should be reassigned to the second advisor, got %+v", open)
	}
	next := fx.jobs.pendingForLead(lead.ID)
	if next == nil || next.ReassignmentCount != 1 {
		t.Fatalf("reassignment must start a new watch with count 1, got %+v", next)
	}
	if fx.timeline.countType(lead.ID, timelinerepo.EventSLAFailed) != 1 {
		t.Fatal("the failure must be audited")
	}
}

func TestClosedAwardsPointsAndEndsAssignment(t *testing.T) {
	advisor := availableAdvisor("a")
	fx := newPipeline(advisor)
	lead := fx.qualifiedLead(t)
	ctx := context.Background()

	if _, err := fx.svc.Assign(ctx, lead.ID, &advisor.ID, assignment.SourceManual); err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}
	if _, err := fx.svc.Contacted(ctx, lead.ID, advisor.ID); err != nil {
		t.Fatalf("Contacted returned error: %v", err)
	}
	if _, err := fx.svc.Appointment(ctx, lead.ID, advisor.ID); err != nil {
		t.Fatalf("Appointment returned error: %v", err)
	}
	updated, err := fx.svc.Closed(ctx, lead.ID, advisor.ID)
	if err != nil {
		t.Fatalf("Closed returned error: %v", err)
	}
	if updated.Status != domain.StatusCierre {
		t.Fatalf("expected CIERRE, got %s", updated.Status)
	}

	// +2 contacted, +5 appointment, +10 closed.
	if got := fx.ledger.pointsFor(advisor.ID); got != 17 {
		t.Fatalf("expected 17 points over the funnel, got %d", got)
	}
	if open := fx.assigns.openFor(lead.ID); len(open) != 0 {
		t.Fatal("closing the deal must end the assignment")
	}
}

func TestContactAttemptSoftensThePenalty(t *testing.T) {
	advisor := availableAdvisor("only")
	fx := newPipeline(advisor)
	lead := fx.qualifiedLead(t)
	ctx := context.Background()

	if _, err := fx.svc.Assign(ctx, lead.ID, &advisor.ID, assignment.SourceManual); err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}
	if err := fx.svc.ContactAttempt(ctx, lead.ID, advisor.ID, "whatsapp"); err != nil {
		t.Fatalf("ContactAttempt returned error: %v", err)
	}

	job := fx.jobs.pendingForLead(lead.ID)
	if err := fx.watchdog.OnDue(ctx, job.ID); err != nil {
		t.Fatalf("OnDue returned error: %v", err)
	}

	if got := fx.ledger.pointsFor(advisor.ID); got != -2 {
		t.Fatalf("a logged attempt softens the penalty to -2, got %d", got)
	}
}

func TestSummarizeAttachesNote(t *testing.T) {
	fx := newPipeline()
	lead := fx.qualifiedLead(t)

	note, err := fx.svc.Summarize(context.Background(), lead.ID)
	if err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}
	if note.Author != "ai" || note.Body == "" {
		t.Fatalf("expected an ai-authored note, got %+v", note)
	}

	notes, err := fx.svc.Notes(context.Background(), lead.ID, 10)
	if err != nil {
		t.Fatalf("Notes returned error: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("expected one stored note, got %d", len(notes))
	}
}

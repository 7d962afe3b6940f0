package lifecycle_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"auditflow/internal/audit"
	"auditflow/internal/common"
	"auditflow/internal/domain"
	"auditflow/internal/lifecycle"
	"auditflow/internal/notification"
	"auditflow/internal/scoring"
	"auditflow/internal/template"
	"auditflow/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type recordingSink struct {
	mu   sync.Mutex
	msgs []notification.Message
}

func (r *recordingSink) Notify(_ context.Context, msg notification.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingSink) kinds(recipient string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.msgs {
		if m.Recipient == recipient {
			out = append(out, m.Kind)
		}
	}
	return out
}

type fixture struct {
	db       *gorm.DB
	manager  *lifecycle.Manager
	catalog  *template.Catalog
	sink     *recordingSink
	template *template.ChecklistTemplate
	question []string
}

func setup(t *testing.T) *fixture {
	db := testkit.OpenDB(t)
	catalog := template.NewCatalog(db, nil)
	sink := &recordingSink{}
	manager := lifecycle.NewManager(db, audit.NewRecorder(db),
		lifecycle.WithTemplates(catalog),
		lifecycle.WithNotifier(sink),
		lifecycle.WithManagerLogger(zaptest.NewLogger(t)),
	)
	tmpl, questions := testkit.PublishedTemplate(t, catalog)
	return &fixture{db: db, manager: manager, catalog: catalog, sink: sink, template: tmpl, question: questions}
}

func (f *fixture) createRequest() *lifecycle.CreateAuditRequest {
	return &lifecycle.CreateAuditRequest{
		TemplateID:     f.template.ID,
		TargetType:     lifecycle.TargetMachine,
		TargetRef:      "PRESS-07",
		ScheduledDate:  time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		L1AuditorID:    testkit.L1,
		L2AuditorID:    testkit.L2,
		ProcessOwnerID: testkit.Owner,
	}
}

func TestCreateAudit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.manager.CreateAudit(ctx, testkit.Actors[testkit.L1], f.createRequest())
	assert.ErrorIs(t, err, common.ErrForbidden)

	draft, err := f.catalog.CreateTemplate(ctx, &template.CreateTemplateRequest{
		Code: "DRAFT", Name: "draft",
		Sections: []template.SectionInput{{Title: "s", Questions: []template.QuestionInput{{Text: "q"}}}},
	})
	require.NoError(t, err)
	req := f.createRequest()
	req.TemplateID = draft.ID
	_, err = f.manager.CreateAudit(ctx, testkit.Actors[testkit.Admin], req)
	assert.ErrorIs(t, err, common.ErrValidation)

	req = f.createRequest()
	req.TargetType = "warehouse"
	_, err = f.manager.CreateAudit(ctx, testkit.Actors[testkit.Admin], req)
	assert.ErrorIs(t, err, common.ErrValidation)

	a, err := f.manager.CreateAudit(ctx, testkit.Actors[testkit.Admin], f.createRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAssigned, a.Status)
	assert.Equal(t, f.template.Version, a.TemplateVersion)
	assert.Equal(t, []audit.Action{audit.ActionScheduled}, testkit.Actions(t, f.db, a.ID))
	assert.Equal(t, []string{notification.KindAuditAssigned}, f.sink.kinds(testkit.L1))
}

func TestSubmitRoutesByLiveOpenNCCount(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	l1 := testkit.Actors[testkit.L1]

	assigned := testkit.SeedAudit(t, f.db, f.template.ID, domain.StatusAssigned)
	_, err := f.manager.Submit(ctx, l1, assigned.ID)
	assert.ErrorIs(t, err, common.ErrConflict)

	a := testkit.SeedAudit(t, f.db, f.template.ID, domain.StatusNCOpen)
	nc := testkit.SeedNC(t, f.db, a.ID, domain.NCOpen)

	_, err = f.manager.Submit(ctx, testkit.Actors[testkit.Other], a.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)

	// 必答项未答
	_, err = f.manager.Submit(ctx, l1, a.ID)
	require.ErrorIs(t, err, common.ErrConflict)
	assert.Contains(t, err.Error(), lifecycle.ReasonMandatoryUnanswered)
	assert.Equal(t, domain.StatusNCOpen, testkit.Status(t, f.db, a.ID))
	testkit.SeedAnswer(t, f.db, a.ID, f.question[0], nil)

	got, err := f.manager.Submit(ctx, l1, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNCPendingVerify, got.Status)
	assert.Nil(t, got.SubmittedAt)

	// 整改中的 NC 不算 Open
	require.NoError(t, f.db.Model(&domain.NonConformance{}).Where("id = ?", nc.ID).
		Update("status", domain.NCPendingVerification).Error)

	got, err = f.manager.Submit(ctx, l1, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmittedToL2, got.Status)
	assert.NotNil(t, got.SubmittedAt)
	assert.Equal(t, []string{notification.KindSubmitted}, f.sink.kinds(testkit.L2))

	_, err = f.manager.Submit(ctx, l1, a.ID)
	assert.ErrorIs(t, err, common.ErrConflict)

	_, err = f.manager.Submit(ctx, l1, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSubmitRequiresMandatoryAnswers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	l1 := testkit.Actors[testkit.L1]
	a := testkit.SeedAudit(t, f.db, f.template.ID, domain.StatusInProgress)

	// 只答了非必答项
	testkit.SeedAnswer(t, f.db, a.ID, f.question[1], nil)
	_, err := f.manager.Submit(ctx, l1, a.ID)
	require.ErrorIs(t, err, common.ErrConflict)
	assert.Contains(t, err.Error(), "1 missing")
	assert.Equal(t, domain.StatusInProgress, testkit.Status(t, f.db, a.ID))
	assert.Empty(t, testkit.Actions(t, f.db, a.ID))

	testkit.SeedAnswer(t, f.db, a.ID, f.question[0], nil)
	got, err := f.manager.Submit(ctx, l1, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmittedToL2, got.Status)
}

func TestApproveRequiresScoresAndClosedNCs(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	l2 := testkit.Actors[testkit.L2]

	a := testkit.SeedAudit(t, f.db, f.template.ID, domain.StatusSubmittedToL2)
	answer := testkit.SeedAnswer(t, f.db, a.ID, f.question[0], nil)
	testkit.SeedAnswer(t, f.db, a.ID, f.question[1], testkit.IntPtr(3))
	nc := testkit.SeedNC(t, f.db, a.ID, domain.NCPendingVerification)

	_, err := f.manager.Approve(ctx, testkit.Actors[testkit.L1], a.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = f.manager.Approve(ctx, l2, a.ID)
	require.ErrorIs(t, err, common.ErrConflict)
	assert.EqualError(t, err, scoring.ReasonUnscoredAnswers)
	assert.Equal(t, domain.StatusSubmittedToL2, testkit.Status(t, f.db, a.ID))

	require.NoError(t, f.db.Model(&domain.ChecklistAnswer{}).Where("id = ?", answer.ID).Update("l2_score", 2).Error)
	_, err = f.manager.Approve(ctx, l2, a.ID)
	require.ErrorIs(t, err, common.ErrConflict)
	assert.EqualError(t, err, scoring.ReasonOpenNCs)
	assert.Equal(t, domain.StatusSubmittedToL2, testkit.Status(t, f.db, a.ID))
	assert.NotContains(t, testkit.Actions(t, f.db, a.ID), audit.ActionApproved)

	require.NoError(t, f.db.Model(&domain.NonConformance{}).Where("id = ?", nc.ID).Update("status", domain.NCClosed).Error)
	got, err := f.manager.Approve(ctx, l2, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, []audit.Action{audit.ActionApproved}, testkit.Actions(t, f.db, a.ID))

	_, err = f.manager.Approve(ctx, l2, a.ID)
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestRejectClearsScores(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	l2 := testkit.Actors[testkit.L2]

	a := testkit.SeedAudit(t, f.db, f.template.ID, domain.StatusSubmittedToL2)
	testkit.SeedAnswer(t, f.db, a.ID, f.question[0], testkit.IntPtr(0))
	testkit.SeedAnswer(t, f.db, a.ID, f.question[1], testkit.IntPtr(2))

	_, err := f.manager.Reject(ctx, l2, a.ID, "  ")
	assert.ErrorIs(t, err, common.ErrValidation)

	got, err := f.manager.Reject(ctx, l2, a.ID, "Photos missing for guard checks")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, got.Status)
	assert.Equal(t, "Photos missing for guard checks", got.RejectionReason)

	var scored int64
	require.NoError(t, f.db.Model(&domain.ChecklistAnswer{}).
		Where("audit_id = ? AND (l2_score IS NOT NULL OR scored_at IS NOT NULL)", a.ID).Count(&scored).Error)
	assert.Zero(t, scored)
	assert.Equal(t, []string{notification.KindRejected}, f.sink.kinds(testkit.L1))

	// 驳回后可以重新提交
	got, err = f.manager.Submit(ctx, testkit.Actors[testkit.L1], a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmittedToL2, got.Status)
}

func TestAssignRolesFillsOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	admin := testkit.Actors[testkit.Admin]

	req := f.createRequest()
	req.L2AuditorID, req.ProcessOwnerID = "", ""
	a, err := f.manager.CreateAudit(ctx, admin, req)
	require.NoError(t, err)

	_, err = f.manager.AssignRoles(ctx, testkit.Actors[testkit.L1], a.ID, lifecycle.AssignRolesRequest{L2AuditorID: testkit.L2})
	assert.ErrorIs(t, err, common.ErrForbidden)

	got, err := f.manager.AssignRoles(ctx, admin, a.ID, lifecycle.AssignRolesRequest{L2AuditorID: testkit.L2})
	require.NoError(t, err)
	assert.Equal(t, testkit.L2, got.L2AuditorID)
	assert.Empty(t, got.ProcessOwnerID)

	// 相同值重复指派是幂等的
	_, err = f.manager.AssignRoles(ctx, admin, a.ID, lifecycle.AssignRolesRequest{L2AuditorID: testkit.L2, ProcessOwnerID: testkit.Owner})
	require.NoError(t, err)

	_, err = f.manager.AssignRoles(ctx, admin, a.ID, lifecycle.AssignRolesRequest{L2AuditorID: "someone-else"})
	assert.ErrorIs(t, err, common.ErrConflict)

	actions := testkit.Actions(t, f.db, a.ID)
	assert.Equal(t, []audit.Action{audit.ActionScheduled, audit.ActionRolesAssigned, audit.ActionRolesAssigned}, actions)
	assert.Equal(t, []string{notification.KindRoleAssigned}, f.sink.kinds(testkit.Owner))
}

func TestAdminSetStatusAndDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	admin := testkit.Actors[testkit.Admin]

	a := testkit.SeedAudit(t, f.db, f.template.ID, domain.StatusInProgress)
	testkit.SeedNC(t, f.db, a.ID, domain.NCOpen)

	_, err := f.manager.AdminSetStatus(ctx, testkit.Actors[testkit.L1], a.ID, domain.StatusCompleted, "")
	assert.ErrorIs(t, err, common.ErrForbidden)
	_, err = f.manager.AdminSetStatus(ctx, admin, a.ID, "Archived", "")
	assert.ErrorIs(t, err, common.ErrValidation)

	got, err := f.manager.AdminSetStatus(ctx, admin, a.ID, domain.StatusAssigned, "reopened by plant manager")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAssigned, got.Status)

	err = f.manager.DeleteAudit(ctx, admin, a.ID, false)
	assert.ErrorIs(t, err, common.ErrConflict)

	require.NoError(t, f.manager.DeleteAudit(ctx, admin, a.ID, true))
	_, err = domain.FindAudit(f.db, a.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	var ncs int64
	require.NoError(t, f.db.Model(&domain.NonConformance{}).Where("audit_id = ?", a.ID).Count(&ncs).Error)
	assert.Zero(t, ncs)
	assert.Equal(t, []audit.Action{audit.ActionStatusOverride, audit.ActionDeleted}, testkit.Actions(t, f.db, a.ID))
}

func TestGetAndListAuditsVisibility(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a := testkit.SeedAudit(t, f.db, f.template.ID, domain.StatusInProgress)
	testkit.SeedAnswer(t, f.db, a.ID, f.question[0], nil)
	testkit.SeedNC(t, f.db, a.ID, domain.NCOpen)

	view, err := f.manager.GetAudit(ctx, testkit.Actors[testkit.Owner], a.ID)
	require.NoError(t, err)
	assert.Len(t, view.Answers, 1)
	assert.Len(t, view.Questions, 2)
	assert.Equal(t, int64(1), view.OpenNCs)

	_, err = f.manager.GetAudit(ctx, testkit.Actors[testkit.Other], a.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)
	_, err = f.manager.GetAudit(ctx, testkit.Actors[testkit.Other], "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	items, total, err := f.manager.ListAudits(ctx, testkit.Actors[testkit.Other], lifecycle.ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)

	items, total, err = f.manager.ListAudits(ctx, testkit.Actors[testkit.Admin], lifecycle.ListFilter{Status: string(domain.StatusInProgress)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, a.ID, items[0].ID)

	_, _, err = f.manager.ListAudits(ctx, testkit.Actors[testkit.Admin], lifecycle.ListFilter{Status: "Archived"})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestSendRemindersOnlyForUnstartedAudits(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	soon := testkit.SeedAudit(t, f.db, f.template.ID, domain.StatusAssigned)
	started := testkit.SeedAudit(t, f.db, f.template.ID, domain.StatusInProgress)
	later := testkit.SeedAudit(t, f.db, f.template.ID, domain.StatusAssigned)

	tomorrow := time.Now().UTC().Add(12 * time.Hour)
	for _, a := range []*domain.Audit{soon, started} {
		require.NoError(t, f.db.Model(&domain.Audit{}).Where("id = ?", a.ID).Update("scheduled_date", tomorrow).Error)
	}
	require.NoError(t, f.db.Model(&domain.Audit{}).Where("id = ?", later.ID).
		Update("scheduled_date", time.Now().UTC().Add(72*time.Hour)).Error)

	n, err := f.manager.SendReminders(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{notification.KindReminder}, f.sink.kinds(testkit.L1))
}

func TestTransitionsArePublished(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a := testkit.SeedAudit(t, f.db, f.template.ID, domain.StatusInProgress)
	testkit.SeedAnswer(t, f.db, a.ID, f.question[0], nil)
	events, cancel := f.manager.Bus().Subscribe(a.ID)
	defer cancel()

	_, err := f.manager.Submit(ctx, testkit.Actors[testkit.L1], a.ID)
	require.NoError(t, err)

	select {
	case evt := <-events:
		assert.Equal(t, string(audit.ActionSubmitted), evt.Action)
		assert.Equal(t, string(domain.StatusInProgress), evt.From)
		assert.Equal(t, string(domain.StatusSubmittedToL2), evt.To)
		assert.Equal(t, testkit.L1, evt.ActorID)
	case <-time.After(time.Second):
		t.Fatal("expected a submitted event")
	}
}

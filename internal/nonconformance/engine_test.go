package nonconformance

import (
	"context"
	"sync"
	"testing"

	"auditflow/internal/audit"
	"auditflow/internal/common"
	"auditflow/internal/domain"
	"auditflow/internal/lifecycle"
	"auditflow/internal/template"
	"auditflow/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupEngine(t *testing.T) (*Engine, *gorm.DB, string) {
	db := testkit.OpenDB(t)
	catalog := template.NewCatalog(db, nil)
	tmpl, _ := testkit.PublishedTemplate(t, catalog)
	recorder := audit.NewRecorder(db)
	lc := lifecycle.NewManager(db, recorder, lifecycle.WithTemplates(catalog))
	return NewEngine(db, recorder, lc), db, tmpl.ID
}

func TestRaiseGuardsAndSideEffect(t *testing.T) {
	engine, db, templateID := setupEngine(t)
	ctx := context.Background()
	l1 := testkit.Actors[testkit.L1]

	a := testkit.SeedAudit(t, db, templateID, domain.StatusInProgress)
	req := RaiseRequest{RefKind: domain.RefCalibration, RefKey: "Caliper 150mm", Description: "Sticker expired"}

	_, err := engine.Raise(ctx, testkit.Actors[testkit.Owner], a.ID, req)
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = engine.Raise(ctx, l1, a.ID, RaiseRequest{RefKind: domain.RefCalibration, Description: "x"})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = engine.Raise(ctx, l1, a.ID, RaiseRequest{RefKind: domain.RefUnlinked})
	assert.ErrorIs(t, err, common.ErrValidation)

	nc, err := engine.Raise(ctx, l1, a.ID, req)
	require.NoError(t, err)
	assert.Equal(t, domain.NCOpen, nc.Status)
	assert.Equal(t, domain.CalibrationRef("Caliper 150mm"), nc.Ref)
	assert.Equal(t, domain.StatusNCOpen, testkit.Status(t, db, a.ID))

	// 已在 NC_Open 时再提出不再迁移
	_, err = engine.Raise(ctx, l1, a.ID, RaiseRequest{Reference: "q_guard", Description: "Guard missing"})
	require.NoError(t, err)
	assert.Equal(t, []audit.Action{audit.ActionNCRaised, audit.ActionNCOpened, audit.ActionNCRaised}, testkit.Actions(t, db, a.ID))

	submitted := testkit.SeedAudit(t, db, templateID, domain.StatusSubmittedToL2)
	_, err = engine.Raise(ctx, l1, submitted.ID, req)
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestNCMonotonicity(t *testing.T) {
	engine, db, templateID := setupEngine(t)
	ctx := context.Background()
	l1, owner := testkit.Actors[testkit.L1], testkit.Actors[testkit.Owner]

	a := testkit.SeedAudit(t, db, templateID, domain.StatusInProgress)
	nc, err := engine.Raise(ctx, l1, a.ID, RaiseRequest{Description: "Oil leak at station 3"})
	require.NoError(t, err)

	_, err = engine.Verify(ctx, l1, nc.ID)
	assert.ErrorIs(t, err, common.ErrConflict, "verify requires Pending_Verification")

	fix := ResolveRequest{RootCause: "Worn seal", CorrectiveAction: "Seal replaced", EvidenceURL: "/evidence/seal.jpg"}
	_, err = engine.Resolve(ctx, l1, nc.ID, fix)
	assert.ErrorIs(t, err, common.ErrForbidden)
	_, err = engine.Resolve(ctx, owner, nc.ID, ResolveRequest{RootCause: "Worn seal"})
	assert.ErrorIs(t, err, common.ErrValidation)

	resolved, err := engine.Resolve(ctx, owner, nc.ID, fix)
	require.NoError(t, err)
	assert.Equal(t, domain.NCPendingVerification, resolved.Status)
	assert.Equal(t, "Worn seal", resolved.RootCause)
	assert.Equal(t, testkit.Owner, resolved.ResolvedBy)
	assert.NotNil(t, resolved.ResolvedAt)

	_, err = engine.Resolve(ctx, owner, nc.ID, ResolveRequest{RootCause: "other", CorrectiveAction: "other"})
	assert.ErrorIs(t, err, common.ErrConflict)
	again, err := findNC(db, nc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Worn seal", again.RootCause, "整改信息只写入一次")

	assert.ErrorIs(t, engine.Delete(ctx, l1, nc.ID), common.ErrConflict)

	_, err = engine.Verify(ctx, owner, nc.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)
	closed, err := engine.Verify(ctx, l1, nc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.NCClosed, closed.Status)
	assert.Equal(t, testkit.L1, closed.VerifiedBy)

	_, err = engine.Verify(ctx, l1, nc.ID)
	assert.ErrorIs(t, err, common.ErrConflict)
	_, err = engine.Resolve(ctx, owner, nc.ID, fix)
	assert.ErrorIs(t, err, common.ErrConflict)

	_, err = engine.Verify(ctx, l1, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestConcurrentVerifySucceedsOnce(t *testing.T) {
	engine, db, templateID := setupEngine(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	a := testkit.SeedAudit(t, db, templateID, domain.StatusNCPendingVerify)
	nc := testkit.SeedNC(t, db, a.ID, domain.NCPendingVerification)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Verify(context.Background(), testkit.Actors[testkit.L1], nc.ID)
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, common.ErrConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, conflicts)

	var verified int64
	require.NoError(t, db.Model(&audit.Log{}).Where("audit_id = ? AND action = ?", a.ID, audit.ActionNCVerified).Count(&verified).Error)
	assert.Equal(t, int64(1), verified)
}

func TestDeleteLastOpenNCRevertsAudit(t *testing.T) {
	engine, db, templateID := setupEngine(t)
	ctx := context.Background()
	l1 := testkit.Actors[testkit.L1]

	a := testkit.SeedAudit(t, db, templateID, domain.StatusInProgress)
	first, err := engine.Raise(ctx, l1, a.ID, RaiseRequest{Description: "first"})
	require.NoError(t, err)
	second, err := engine.Raise(ctx, l1, a.ID, RaiseRequest{Description: "second"})
	require.NoError(t, err)

	assert.ErrorIs(t, engine.Delete(ctx, testkit.Actors[testkit.Owner], first.ID), common.ErrForbidden)

	require.NoError(t, engine.Delete(ctx, l1, first.ID))
	assert.Equal(t, domain.StatusNCOpen, testkit.Status(t, db, a.ID))

	require.NoError(t, engine.Delete(ctx, l1, second.ID))
	assert.Equal(t, domain.StatusInProgress, testkit.Status(t, db, a.ID))

	assert.ErrorIs(t, engine.Delete(ctx, l1, second.ID), common.ErrNotFound)
	assert.Contains(t, testkit.Actions(t, db, a.ID), audit.ActionNCCleared)
}

func TestRaiseAutoDeduplicates(t *testing.T) {
	engine, db, templateID := setupEngine(t)
	a := testkit.SeedAudit(t, db, templateID, domain.StatusInProgress)
	ref := domain.ParameterRef("Clamp pressure")

	var raised []*Raised
	for i := 0; i < 2; i++ {
		err := db.Transaction(func(tx *gorm.DB) error {
			locked, err := domain.LockAudit(tx, a.ID)
			if err != nil {
				return err
			}
			r, err := engine.RaiseAuto(tx, locked, testkit.L1, ref, "")
			raised = append(raised, r)
			return err
		})
		require.NoError(t, err)
	}
	require.NotNil(t, raised[0])
	assert.True(t, raised[0].NC.AutoRaised)
	assert.Contains(t, raised[0].NC.Description, "parameter:Clamp pressure")
	assert.Nil(t, raised[1])

	// 关闭后同一对象可再次自动提出
	require.NoError(t, db.Model(&domain.NonConformance{}).Where("id = ?", raised[0].NC.ID).Update("status", domain.NCClosed).Error)
	err := db.Transaction(func(tx *gorm.DB) error {
		locked, err := domain.LockAudit(tx, a.ID)
		if err != nil {
			return err
		}
		r, err := engine.RaiseAuto(tx, locked, testkit.L1, ref, "Out of spec again")
		require.NotNil(t, r)
		return err
	})
	require.NoError(t, err)
}

func TestOwnerInbox(t *testing.T) {
	engine, db, templateID := setupEngine(t)
	ctx := context.Background()

	a := testkit.SeedAudit(t, db, templateID, domain.StatusNCOpen)
	testkit.SeedNC(t, db, a.ID, domain.NCOpen)
	testkit.SeedNC(t, db, a.ID, domain.NCClosed)

	items, total, err := engine.ListAssignedToOwner(ctx, testkit.Actors[testkit.Owner], ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, items, 1)
	assert.Equal(t, domain.NCOpen, items[0].Status)

	items, total, err = engine.ListAssignedToOwner(ctx, testkit.Actors[testkit.Other], ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)

	all, total, err := engine.ListForAudit(ctx, testkit.Actors[testkit.L2], a.ID, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, all, 2)

	_, _, err = engine.ListForAudit(ctx, testkit.Actors[testkit.Other], a.ID, ListFilter{})
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = engine.Get(ctx, testkit.Actors[testkit.Other], all[0].ID)
	assert.ErrorIs(t, err, common.ErrForbidden)
	got, err := engine.Get(ctx, testkit.Actors[testkit.Owner], all[0].ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.AuditID)
}

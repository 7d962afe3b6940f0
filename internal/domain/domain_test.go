package domain

import (
	"fmt"
	"testing"
	"time"

	"auditflow/internal/common"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestAuditStatusPredicates(t *testing.T) {
	editable := map[AuditStatus]bool{
		StatusAssigned:        true,
		StatusInProgress:      true,
		StatusNCOpen:          true,
		StatusNCPendingVerify: true,
		StatusSubmittedToL2:   false,
		StatusCompleted:       false,
		StatusRejected:        true,
	}
	for s, want := range editable {
		assert.Equal(t, want, s.Editable(), s)
		assert.True(t, s.Valid())
	}

	assert.False(t, StatusAssigned.Submittable())
	assert.True(t, StatusRejected.Submittable())
	assert.True(t, StatusNCPendingVerify.Submittable())
	assert.False(t, StatusSubmittedToL2.Submittable())
	assert.False(t, AuditStatus("Scheduled").Valid())
}

func TestScoreValid(t *testing.T) {
	for _, s := range []Score{ScoreNC, ScoreObservation, ScoreOK, ScoreNA} {
		assert.True(t, s.Valid())
	}
	assert.False(t, Score(4).Valid())
	assert.False(t, Score(-1).Valid())
	assert.Equal(t, "NA", ScoreNA.Label())
}

func TestNCRef(t *testing.T) {
	assert.Equal(t, NCRef{Kind: RefCalibration, Key: "Vernier 0-150"}, ParseReferenceKey("cal_Vernier 0-150"))
	assert.Equal(t, NCRef{Kind: RefParameter, Key: "Torque"}, ParseReferenceKey("param_Torque"))
	assert.Equal(t, RefUnlinked, ParseReferenceKey("free text").Kind)
	assert.Equal(t, "objective:quality/ppm", ObjectiveRef("quality", "ppm").String())

	require.NoError(t, AnswerRef("q1").Validate())
	require.NoError(t, UnlinkedRef("").Validate())
	require.Error(t, NCRef{Kind: RefParameter}.Validate())
	require.Error(t, NCRef{Kind: "row_id", Key: "x"}.Validate())
}

func TestActorRoles(t *testing.T) {
	a := Actor{UserID: "u1", Roles: []string{"l1", "admin"}}
	assert.True(t, a.HasRole(RoleL1))
	assert.True(t, a.IsAdmin())
	assert.False(t, a.HasRole(RoleL2))
}

func TestLockAudit(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(Models()...))

	audit := &Audit{
		TemplateID:    "tpl-1",
		TargetType:    "machine",
		TargetRef:     "M-01",
		ScheduledDate: time.Now(),
		L1AuditorID:   "l1",
		Status:        StatusAssigned,
	}
	require.NoError(t, db.Create(audit).Error)
	require.NotEmpty(t, audit.ID)

	err = db.Transaction(func(tx *gorm.DB) error {
		locked, err := LockAudit(tx, audit.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusAssigned, locked.Status)

		_, err = LockAudit(tx, "missing")
		assert.ErrorIs(t, err, common.ErrNotFound)
		return nil
	})
	require.NoError(t, err)

	assert.True(t, audit.IsParticipant("l1"))
	assert.False(t, audit.IsParticipant(""))
}

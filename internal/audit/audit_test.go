package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestRecorder(t *testing.T) (*Recorder, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Log{}))

	r := NewRecorder(db)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	tick := 0
	r.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return r, db
}

func TestRecorderAppendAndList(t *testing.T) {
	r, db := newTestRecorder(t)
	ctx := context.Background()

	_, err := r.Append(db, Entry{AuditID: "a1", Action: ActionStarted, ActorID: "l1", Detail: Detail{From: "Assigned", To: "In_Progress"}})
	require.NoError(t, err)
	_, err = r.Append(db, Entry{AuditID: "a1", Action: ActionNCRaised, ActorID: "l1", Detail: map[string]any{"nc_id": "nc-1"}})
	require.NoError(t, err)
	_, err = r.Append(db, Entry{AuditID: "a2", Action: ActionStarted, ActorID: "l1"})
	require.NoError(t, err)

	logs, total, err := r.List(ctx, "a1", Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, logs, 2)
	assert.Equal(t, ActionStarted, logs[0].Action)
	assert.Equal(t, ActionNCRaised, logs[1].Action)

	var d Detail
	require.NoError(t, json.Unmarshal(logs[0].Detail, &d))
	assert.Equal(t, "In_Progress", d.To)

	logs, total, err = r.List(ctx, "a1", Filter{Action: ActionNCRaised})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "l1", logs[0].ActorID)
}

func TestRecorderAppendRollsBackWithTransaction(t *testing.T) {
	r, db := newTestRecorder(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := r.Append(tx, Entry{AuditID: "a1", Action: ActionApproved, ActorID: "l2"}); err != nil {
			return err
		}
		return fmt.Errorf("guard failed")
	})
	require.Error(t, err)

	_, total, err := r.List(context.Background(), "a1", Filter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestRecorderAppendRequiresAction(t *testing.T) {
	r, db := newTestRecorder(t)
	_, err := r.Append(db, Entry{AuditID: "a1"})
	require.Error(t, err)
}

func TestExportCSV(t *testing.T) {
	r, db := newTestRecorder(t)
	_, err := r.Append(db, Entry{AuditID: "a1", Action: ActionSubmitted, ActorID: "l1", Detail: Detail{From: "In_Progress", To: "Submitted_to_L2"}})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := r.ExportCSV(context.Background(), "a1", &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "audit.submitted", records[1][2])
	assert.Equal(t, Describe(ActionSubmitted), records[1][3])
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, CategoryNC, CategoryOf(ActionNCVerified))
	assert.Equal(t, CategoryScoring, CategoryOf(ActionAnswerScored))
	assert.Equal(t, CategoryAdmin, CategoryOf(ActionStatusOverride))
	assert.Equal(t, CategoryLifecycle, CategoryOf(ActionSubmitted))
	assert.Equal(t, "custom", Describe(Action("custom")))
}

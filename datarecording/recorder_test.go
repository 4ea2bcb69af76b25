package datarecording

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type marginEntry struct {
	RunID      string
	Stage      string
	VerticalMV float64
	PowerMW    float64
}

type nestedEntry struct {
	RunID string
	Taps  []float64
}

func memoryRecorder(t *testing.T) Recorder {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewWithDB(db)
}

func TestCreateTableAndList(t *testing.T) {
	r := memoryRecorder(t)

	r.CreateTable("stage_margins", marginEntry{})

	assert.Equal(t, []string{"stage_margins"}, r.ListTables())
}

func TestCreateTableRejectsNestedFields(t *testing.T) {
	r := memoryRecorder(t)

	assert.Panics(t, func() {
		r.CreateTable("bad", nestedEntry{})
	})
}

func TestInsertAndQueryBack(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	r := NewWithDB(db)
	r.CreateTable("stage_margins", marginEntry{})

	r.InsertData("stage_margins", marginEntry{
		RunID: "run1", Stage: "Raw Link", VerticalMV: -120.5, PowerMW: 7.5,
	})
	r.InsertData("stage_margins", marginEntry{
		RunID: "run1", Stage: "+ CDR", VerticalMV: 27.1, PowerMW: 51.0,
	})
	r.Flush()

	rows, err := db.Query(
		"SELECT RunID, Stage, VerticalMV, PowerMW FROM stage_margins")
	require.NoError(t, err)
	defer rows.Close()

	var got []marginEntry
	for rows.Next() {
		var e marginEntry
		require.NoError(t,
			rows.Scan(&e.RunID, &e.Stage, &e.VerticalMV, &e.PowerMW))
		got = append(got, e)
	}
	require.NoError(t, rows.Err())

	require.Len(t, got, 2)
	assert.Equal(t, "Raw Link", got[0].Stage)
	assert.Equal(t, -120.5, got[0].VerticalMV)
	assert.Equal(t, "+ CDR", got[1].Stage)
}

func TestInsertBuffersUntilFlush(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	r := NewWithDB(db)
	r.CreateTable("stage_margins", marginEntry{})
	r.InsertData("stage_margins", marginEntry{RunID: "run1"})

	var count int
	require.NoError(t,
		db.QueryRow("SELECT COUNT(*) FROM stage_margins").Scan(&count))
	assert.Equal(t, 0, count)

	r.Flush()
	require.NoError(t,
		db.QueryRow("SELECT COUNT(*) FROM stage_margins").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestBatchSizeTriggersAutoFlush(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	s := NewWithDB(db).(*sqliteStore)
	s.batchSize = 4
	s.CreateTable("stage_margins", marginEntry{})

	for i := 0; i < 4; i++ {
		s.InsertData("stage_margins", marginEntry{RunID: "run1"})
	}

	var count int
	require.NoError(t,
		db.QueryRow("SELECT COUNT(*) FROM stage_margins").Scan(&count))
	assert.Equal(t, 4, count)
}

func TestInsertIntoUnknownTablePanics(t *testing.T) {
	r := memoryRecorder(t)

	assert.Panics(t, func() {
		r.InsertData("missing", marginEntry{})
	})
}

func TestInsertWrongTypePanics(t *testing.T) {
	r := memoryRecorder(t)
	r.CreateTable("stage_margins", marginEntry{})

	assert.Panics(t, func() {
		r.InsertData("stage_margins", struct{ RunID string }{"run1"})
	})
}

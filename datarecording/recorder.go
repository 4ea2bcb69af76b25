// Package datarecording persists sign-off results into SQLite so that
// waterfall ledgers and Monte Carlo samples from different runs can be
// compared offline.
package datarecording

import (
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/structs"

	// SQLite driver registration.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// Recorder buffers flat record structs and writes them to SQLite in batches.
type Recorder interface {
	// CreateTable declares a table whose columns mirror the fields of the
	// sample entry struct.
	CreateTable(tableName string, sampleEntry any)

	// InsertData buffers one entry of the table's declared type.
	InsertData(tableName string, entry any)

	// ListTables returns the names of all declared tables.
	ListTables() []string

	// Flush writes all buffered entries to the database.
	Flush()
}

// New creates a Recorder backed by a fresh SQLite file at path. An empty
// path generates a unique run-scoped name. Buffered entries are flushed on
// exit.
func New(path string) Recorder {
	s := &sqliteStore{
		dbName:    path,
		batchSize: 4096,
		tables:    make(map[string]*recordTable),
	}

	s.open()

	atexit.Register(func() { s.Flush() })

	return s
}

// NewWithDB creates a Recorder on an existing database handle. Used by tests
// with in-memory databases.
func NewWithDB(db *sql.DB) Recorder {
	s := &sqliteStore{
		DB:        db,
		batchSize: 4096,
		tables:    make(map[string]*recordTable),
	}

	atexit.Register(func() { s.Flush() })

	return s
}

type recordTable struct {
	structType reflect.Type
	entries    []any
}

type sqliteStore struct {
	*sql.DB

	dbName    string
	tables    map[string]*recordTable
	batchSize int
	pending   int
}

func (s *sqliteStore) open() {
	if s.dbName == "" {
		s.dbName = "linksim_signoff_" + xid.New().String()
	}

	filename := s.dbName + ".sqlite3"

	if _, err := os.Stat(filename); err == nil {
		panic(fmt.Errorf("file %s already exists", filename))
	}

	fmt.Fprintf(os.Stderr, "Recording sign-off results to %s\n", filename)

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}

	s.DB = db
}

// flatKind reports whether a struct field maps onto a SQLite column.
func flatKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16,
		reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16,
		reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return true
	default:
		return false
	}
}

func checkFlatStruct(entry any) error {
	t := reflect.TypeOf(entry)

	for i := 0; i < t.NumField(); i++ {
		if !flatKind(t.Field(i).Type.Kind()) {
			return fmt.Errorf("field %s is not a flat column type",
				t.Field(i).Name)
		}
	}

	return nil
}

func (s *sqliteStore) CreateTable(tableName string, sampleEntry any) {
	if err := checkFlatStruct(sampleEntry); err != nil {
		panic(err)
	}

	cols := strings.Join(structs.Names(sampleEntry), ", \n\t")
	s.mustExec(`CREATE TABLE ` + tableName + ` (` + "\n\t" + cols + "\n" + `);`)

	s.tables[tableName] = &recordTable{
		structType: reflect.TypeOf(sampleEntry),
	}
}

func (s *sqliteStore) InsertData(tableName string, entry any) {
	table, ok := s.tables[tableName]
	if !ok {
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	if reflect.TypeOf(entry) != table.structType {
		panic(fmt.Sprintf("entry type does not match table %s", tableName))
	}

	table.entries = append(table.entries, entry)

	s.pending++
	if s.pending >= s.batchSize {
		s.Flush()
	}
}

func (s *sqliteStore) ListTables() []string {
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}

	return names
}

func (s *sqliteStore) Flush() {
	if s.pending == 0 {
		return
	}

	s.mustExec("BEGIN TRANSACTION")
	defer s.mustExec("COMMIT TRANSACTION")

	for tableName, table := range s.tables {
		if len(table.entries) == 0 {
			continue
		}

		stmt := s.prepareInsert(tableName, table.entries[0])

		for _, entry := range table.entries {
			v := reflect.ValueOf(entry)

			args := make([]any, 0, v.NumField())
			for i := 0; i < v.NumField(); i++ {
				args = append(args, v.Field(i).Interface())
			}

			if _, err := stmt.Exec(args...); err != nil {
				panic(err)
			}
		}

		table.entries = nil
		stmt.Close()
	}

	s.pending = 0
}

func (s *sqliteStore) mustExec(query string) sql.Result {
	res, err := s.Exec(query)
	if err != nil {
		panic(fmt.Errorf("failed to execute %q: %w", query, err))
	}

	return res
}

func (s *sqliteStore) prepareInsert(tableName string, sample any) *sql.Stmt {
	marks := structs.Names(sample)
	for i := range marks {
		marks[i] = "?"
	}

	stmt, err := s.Prepare(
		"INSERT INTO " + tableName + " VALUES (" +
			strings.Join(marks, ", ") + ")")
	if err != nil {
		panic(err)
	}

	return stmt
}

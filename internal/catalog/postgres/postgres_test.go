package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/voxmorph/voxmorph/internal/catalog"
	"github.com/voxmorph/voxmorph/internal/dsp"
)

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// mockRows implements pgx.Rows over fixed row data.
type mockRows struct {
	data   [][]any
	idx    int
	closed bool
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return nil }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error {
	return assign(r.data[r.idx-1], dest...)
}

func assign(row []any, dest ...any) error {
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *[]byte:
			if row[i] == nil {
				*p = nil
			} else {
				*p = row[i].([]byte)
			}
		}
	}
	return nil
}

// mockDB records queries and serves canned results.
type mockDB struct {
	lastSQL  string
	lastArgs []any
	row      *mockRow
	rows     *mockRows
	execTag  pgconn.CommandTag
	execErr  error
}

func (db *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	db.lastSQL, db.lastArgs = sql, args
	return db.row
}

func (db *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	db.lastSQL, db.lastArgs = sql, args
	return db.rows, nil
}

func (db *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.lastSQL, db.lastArgs = sql, args
	return db.execTag, db.execErr
}

func TestStore_GetDecodesBaseParams(t *testing.T) {
	t.Parallel()

	params := dsp.DefaultParams()
	params.PitchShift = -6
	raw, _ := json.Marshal(params)

	db := &mockDB{row: &mockRow{scanFunc: func(dest ...any) error {
		return assign([]any{"deep", "Deep Voice", "character", "bassy", raw}, dest...)
	}}}
	store := New(db)

	v, err := store.Get(context.Background(), "deep")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v.Category != catalog.CategoryCharacter {
		t.Errorf("category = %q, want character", v.Category)
	}
	if v.BaseParams == nil || v.BaseParams.PitchShift != -6 {
		t.Errorf("base params = %+v, want pitch -6", v.BaseParams)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	t.Parallel()

	db := &mockDB{row: &mockRow{scanFunc: func(dest ...any) error {
		return pgx.ErrNoRows
	}}}
	store := New(db)

	_, err := store.Get(context.Background(), "ghost")
	if !errors.Is(err, catalog.ErrVoiceNotFound) {
		t.Errorf("Get error = %v, want ErrVoiceNotFound", err)
	}
}

func TestStore_PutValidates(t *testing.T) {
	t.Parallel()

	store := New(&mockDB{})
	err := store.Put(context.Background(), catalog.Voice{ID: "x", Name: "X", Category: "bogus"})
	if err == nil {
		t.Fatal("Put accepted an invalid category")
	}
}

func TestStore_SearchUsesILike(t *testing.T) {
	t.Parallel()

	db := &mockDB{rows: &mockRows{data: [][]any{
		{"robot", "Robot", "character", "", nil},
	}}}
	store := New(db)

	voices, err := store.Search(context.Background(), "rob")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "robot" {
		t.Fatalf("Search result = %+v, want the robot voice", voices)
	}
	if !strings.Contains(db.lastSQL, "ILIKE") {
		t.Errorf("search SQL %q does not use ILIKE", db.lastSQL)
	}
	if !db.rows.closed {
		t.Error("rows not closed after Search")
	}
}

func TestStore_DeleteReportsMissing(t *testing.T) {
	t.Parallel()

	db := &mockDB{execTag: pgconn.NewCommandTag("DELETE 0")}
	store := New(db)
	if err := store.Delete(context.Background(), "ghost"); !errors.Is(err, catalog.ErrVoiceNotFound) {
		t.Errorf("Delete error = %v, want ErrVoiceNotFound", err)
	}
}

package migrate

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func testFiles() fstest.MapFS {
	return fstest.MapFS{
		"0001_a.up.sql":   {Data: []byte("CREATE TABLE a (id int);")},
		"0001_a.down.sql": {Data: []byte("DROP TABLE a;")},
		"0002_b.up.sql":   {Data: []byte("-- tabela b\nCREATE TABLE b (nome text);\nINSERT INTO b VALUES ('x;y');")},
		"0002_b.down.sql": {Data: []byte("DROP TABLE b;")},
		"README.md":       {Data: []byte("ignorado")},
	}
}

func newMock(t *testing.T) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	mgr := NewManager(db, testFiles())
	mgr.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return mgr, mock
}

func TestUpAppliesPendingInOrder(t *testing.T) {
	mgr, mock := newMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO b VALUES \('x;y'\)`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("0002_b.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	done, err := mgr.Up(context.Background())
	if err != nil {
		t.Fatalf("up: %v", err)
	}
	if !reflect.DeepEqual(done, []string{"0002_b.up.sql"}) {
		t.Fatalf("aplicadas = %v", done)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpRollsBackFailedMigration(t *testing.T) {
	mgr, mock := newMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name FROM schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE a").WillReturnError(errors.New("sintaxe"))
	mock.ExpectRollback()

	done, err := mgr.Up(context.Background())
	if err == nil {
		t.Fatalf("esperava erro")
	}
	if len(done) != 0 {
		t.Fatalf("nenhuma migração deveria constar como aplicada: %v", done)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDownRevertsLast(t *testing.T) {
	mgr, mock := newMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql").AddRow("0002_b.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM schema_migrations").WithArgs("0002_b.up.sql").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	name, err := mgr.Down(context.Background())
	if err != nil {
		t.Fatalf("down: %v", err)
	}
	if name != "0002_b.up.sql" {
		t.Fatalf("revertida = %s", name)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDownWithoutHistory(t *testing.T) {
	mgr, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name FROM schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))

	if _, err := mgr.Down(context.Background()); !errors.Is(err, ErrNothingToRollback) {
		t.Fatalf("esperava ErrNothingToRollback, veio %v", err)
	}
}

func TestStatus(t *testing.T) {
	mgr, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql"))

	got, err := mgr.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	want := []Status{{Name: "0001_a.up.sql", Applied: true}, {Name: "0002_b.up.sql", Applied: false}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("status = %+v", got)
	}
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("-- cabeçalho; ignorado\nSELECT 1;\nINSERT INTO t VALUES ('a;b');\n\n")
	want := []string{"SELECT 1", "INSERT INTO t VALUES ('a;b')"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("split = %q", got)
	}
}

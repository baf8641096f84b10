package db

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMySQLDSN(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		port     int
		database string
		user     string
		password string
		want     string
	}{
		{
			name:     "default local",
			host:     "127.0.0.1",
			port:     3306,
			database: "stories",
			user:     "root",
			want:     "root@tcp(127.0.0.1:3306)/stories?parseTime=true",
		},
		{
			name:     "with password",
			host:     "db.internal",
			port:     3307,
			database: "hourglass",
			user:     "worker",
			password: "s3cret",
			want:     "worker:s3cret@tcp(db.internal:3307)/hourglass?parseTime=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MySQLDSN(tt.host, tt.port, tt.database, tt.user, tt.password)
			if got != tt.want {
				t.Errorf("MySQLDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMySQLDSN_ParseTimeFlag(t *testing.T) {
	dsn := MySQLDSN("localhost", 3306, "test", "root", "")
	if !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("DSN missing parseTime=true: %s", dsn)
	}
}

func TestOpen_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hourglass.db")
	gormDB, err := Open("sqlite", path)
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	defer Close(gormDB)

	if err := AutoMigrate(gormDB); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	for _, table := range []string{"branch_turns", "story_branches"} {
		if !gormDB.Migrator().HasTable(table) {
			t.Errorf("expected table %s after migrate", table)
		}
	}
}

func TestOpen_SQLiteCreatesParentDirectory(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "nested", "path", "hourglass.db")

	gormDB, err := Open("sqlite", path)
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	t.Cleanup(func() { Close(gormDB) })

	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("expected parent dir to be created: %v", err)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("oracle", "x")
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if !strings.Contains(err.Error(), "unsupported driver") {
		t.Errorf("error = %q", err)
	}
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open("postgres", "  ")
	if err == nil {
		t.Fatal("expected error for empty dsn")
	}
	if !strings.Contains(err.Error(), "dsn is required") {
		t.Errorf("error = %q", err)
	}
}

func TestClose_Nil(t *testing.T) {
	if err := Close(nil); err != nil {
		t.Errorf("Close(nil) = %v, want nil", err)
	}
}

func TestAllModels_Count(t *testing.T) {
	if got := len(AllModels()); got != 2 {
		t.Errorf("AllModels() returned %d models, want 2", got)
	}
}

func TestSQLiteFilePath(t *testing.T) {
	tests := []struct {
		dsn    string
		want   string
		wantOK bool
	}{
		{"hourglass.db", "hourglass.db", true},
		{"file:data/hourglass.db?_busy_timeout=5000", "data/hourglass.db", true},
		{":memory:", "", false},
		{"file::memory:?cache=shared", "", false},
	}
	for _, tt := range tests {
		got, ok := sqliteFilePath(tt.dsn)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("sqliteFilePath(%q) = (%q, %v), want (%q, %v)", tt.dsn, got, ok, tt.want, tt.wantOK)
		}
	}
}

package postgres

import (
	"context"
	"database/sql"
	"reflect"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestParseReplicaURLs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"single", "postgres://replica1/db", []string{"postgres://replica1/db"}},
		{"multiple", "postgres://r1/db,postgres://r2/db", []string{"postgres://r1/db", "postgres://r2/db"}},
		{"whitespace trimmed", " postgres://r1/db , postgres://r2/db ", []string{"postgres://r1/db", "postgres://r2/db"}},
		{"empty segments dropped", "postgres://r1/db,,", []string{"postgres://r1/db"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseReplicaURLs(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseReplicaURLs(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestReplica_FallsBackToPrimary(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	defer db.Close()

	cm := NewConnectionManagerFromDB(db)
	if cm.Replica() != db {
		t.Error("Replica should fall back to primary when no replicas configured")
	}
}

func TestReplica_RoundRobin(t *testing.T) {
	primary, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	defer primary.Close()

	r1, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	defer r1.Close()

	r2, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	defer r2.Close()

	cm := NewConnectionManagerFromDB(primary)
	cm.replicas = []*sql.DB{r1, r2}

	seen := map[*sql.DB]int{}
	for i := 0; i < 10; i++ {
		seen[cm.Replica()]++
	}

	if seen[primary] != 0 {
		t.Error("Primary should not serve reads when replicas exist")
	}
	if seen[r1] != 5 || seen[r2] != 5 {
		t.Errorf("Round-robin spread uneven: %d/%d", seen[r1], seen[r2])
	}
}

func TestRemoveUnhealthyReplicas(t *testing.T) {
	primary, _, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	defer primary.Close()

	healthy, healthyMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	defer healthy.Close()
	healthyMock.ExpectPing()

	broken, _, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	broken.Close()

	cm := NewConnectionManagerFromDB(primary)
	cm.replicas = []*sql.DB{healthy, broken}

	removed := cm.RemoveUnhealthyReplicas(context.Background())

	if removed != 1 {
		t.Errorf("Removed = %d, want 1", removed)
	}
	if len(cm.replicas) != 1 {
		t.Errorf("Remaining replicas = %d, want 1", len(cm.replicas))
	}
}

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"organizations", "materials", "subscriptions"} {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS " + table).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("CREATE (UNIQUE )?INDEX IF NOT EXISTS").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("CREATE INDEX IF NOT EXISTS").
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	if err := EnsureSchema(db); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

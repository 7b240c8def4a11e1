package database

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

func TestMigrateNewDB(t *testing.T) {
	db := openTestDB(t)

	version, err := schemaVersion(t.Context(), db.conn)
	if err != nil {
		t.Fatalf("schemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "idem.db")

	db1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if got := db1.AppliedMigrations(); len(got) != latestVersion() {
		t.Errorf("first Open applied %v, want %d migrations", got, latestVersion())
	}
	db1.Close()

	db2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db2.Close()
	if got := db2.AppliedMigrations(); len(got) != 0 {
		t.Errorf("second Open applied %v, want none", got)
	}

	version, err := schemaVersion(t.Context(), db2.conn)
	if err != nil {
		t.Fatalf("schemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestSchemaVersionNewDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	conn, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	version, err := schemaVersion(t.Context(), conn)
	if err != nil {
		t.Fatalf("schemaVersion: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version 0 on new db, got %d", version)
	}
}

func TestCandidateDistrictConstraint(t *testing.T) {
	db := openTestDB(t)
	partyID := seedParty(t, db, "Fuerza X")

	_, err := db.CreateCandidate(t.Context(), "ana-torres", CandidateFields{
		FullName: "Ana Torres",
		Office:   OfficeSenator,
		PartyID:  partyID,
		Source:   "registry",
	})
	if err == nil {
		t.Error("expected senator without district to violate the schema")
	}

	districtID, err := db.EnsureDistrict(t.Context(), "Lima")
	if err != nil {
		t.Fatalf("EnsureDistrict: %v", err)
	}
	_, err = db.CreateCandidate(t.Context(), "luis-paz", CandidateFields{
		FullName:   "Luis Paz",
		Office:     OfficePresident,
		PartyID:    partyID,
		DistrictID: &districtID,
		Source:     "registry",
	})
	if err == nil {
		t.Error("expected president with district to violate the schema")
	}
}

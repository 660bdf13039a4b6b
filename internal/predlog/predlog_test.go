package predlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func readRows(t *testing.T, path string) []Row {
	t.Helper()

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	rows, err := db.Query("SELECT n, p, k, humidity, rainfall, temperature, crop, ph, name FROM predictions")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.N, &r.P, &r.K, &r.Humidity, &r.Rainfall, &r.Temperature, &r.Crop, &r.PH, &r.Name); err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		out = append(out, r)
	}
	return out
}

func TestOpenCreatesTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "predictions.db")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if l.Path() != path {
		t.Errorf("Expected path %s, got %s", path, l.Path())
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Database file was not created: %v", err)
	}

	// Opening again must not fail on the existing table
	if _, err := Open(path); err != nil {
		t.Fatalf("Second Open failed: %v", err)
	}
}

func TestColumnOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictions.db")
	if _, err := Open(path); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	rows, err := db.Query("SELECT name FROM pragma_table_info('predictions') ORDER BY cid")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		rows.Scan(&name)
		columns = append(columns, name)
	}

	expected := []string{"n", "p", "k", "humidity", "rainfall", "temperature", "crop", "ph", "name"}
	if fmt.Sprint(columns) != fmt.Sprint(expected) {
		t.Errorf("Expected columns %v, got %v", expected, columns)
	}
}

func TestRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictions.db")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	row := Row{N: 90, P: 42, K: 43, Humidity: 82, Rainfall: 202.9, Temperature: 20.8, Crop: "Rice", PH: 6.5, Name: "alice"}
	if err := l.Record(context.Background(), row); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got := readRows(t, path)
	if len(got) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(got))
	}
	if got[0] != row {
		t.Errorf("Expected %+v, got %+v", row, got[0])
	}
}

func TestConcurrentRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictions.db")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- l.Record(context.Background(), Row{N: float64(i), Crop: "Maize", Name: "worker"})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Record failed: %v", err)
		}
	}
	if got := readRows(t, path); len(got) != 8 {
		t.Errorf("Expected 8 rows, got %d", len(got))
	}
}

func TestRecordFailsWhenStoreUnreachable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "predictions.db")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	// Replace the database file with a directory
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := os.Mkdir(path, 0755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}

	if err := l.Record(context.Background(), Row{Crop: "Rice"}); err == nil {
		t.Error("Expected error writing to an unreachable store")
	}
}

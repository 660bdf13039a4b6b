// Package predlog is the append-only SQLite audit trail of crop
// predictions. The service only ever writes to it.
package predlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Table is the name of the prediction log table
const Table = "predictions"

// Column order is part of the on-disk contract.
const createTableSQL = `CREATE TABLE IF NOT EXISTS ` + Table + ` (
	n REAL NOT NULL,
	p REAL NOT NULL,
	k REAL NOT NULL,
	humidity REAL NOT NULL,
	rainfall REAL NOT NULL,
	temperature REAL NOT NULL,
	crop TEXT NOT NULL,
	ph REAL NOT NULL,
	name TEXT NOT NULL
)`

const insertSQL = `INSERT INTO ` + Table + ` (n, p, k, humidity, rainfall, temperature, crop, ph, name)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Row is one logged crop prediction
type Row struct {
	N           float64
	P           float64
	K           float64
	Humidity    float64
	Rainfall    float64
	Temperature float64
	Crop        string
	PH          float64
	Name        string
}

// Log writes prediction rows to a SQLite file. Each write opens its own
// connection and closes it again; concurrent writers rely on SQLite's
// locking.
type Log struct {
	path string
}

// Open makes sure the database file and table exist
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	l := &Log{path: path}
	db, err := l.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create %s table: %w", Table, err)
	}
	return l, nil
}

// Path returns the database file path
func (l *Log) Path() string {
	return l.path
}

func (l *Log) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite3", l.path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open prediction log %s: %w", l.path, err)
	}
	return db, nil
}

// Record appends one row
func (l *Log) Record(ctx context.Context, row Row) error {
	db, err := l.open()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, insertSQL,
		row.N, row.P, row.K,
		row.Humidity, row.Rainfall, row.Temperature,
		row.Crop, row.PH, row.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
	return nil
}

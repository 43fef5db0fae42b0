package order

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteLedger persists order records to a local SQLite file so the ledger
// survives restarts. Opt in via the ledger backend setting.
type SQLiteLedger struct {
	db *sql.DB
}

// Fixed-width layout so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const createOrdersTable = `
CREATE TABLE IF NOT EXISTS orders (
	order_id          TEXT PRIMARY KEY,
	status            TEXT NOT NULL,
	checkout_request  BLOB,
	checkout_response BLOB,
	checkout_raw      BLOB,
	confirm_request   BLOB,
	confirm_response  BLOB,
	confirm_raw       BLOB,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at DESC);
`

// NewSQLiteLedger opens (creating if needed) the ledger database at path.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set synchronous: %w", err)
	}

	if _, err := db.Exec(createOrdersTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create orders table: %w", err)
	}
	return &SQLiteLedger{db: db}, nil
}

// Close releases the database connection.
func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}

// Save creates or overwrites the record, stamping both timestamps to now.
func (s *SQLiteLedger) Save(rec Record) error {
	now := time.Now()
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO orders
		(order_id, status, checkout_request, checkout_response, checkout_raw,
		 confirm_request, confirm_response, confirm_raw, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.OrderID, string(rec.Status),
		[]byte(rec.CheckoutRequest), []byte(rec.CheckoutResponse), []byte(rec.CheckoutRaw),
		[]byte(rec.ConfirmRequest), []byte(rec.ConfirmResponse), []byte(rec.ConfirmRaw),
		now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("save order %s: %w", rec.OrderID, err)
	}
	return nil
}

// Get returns the record, or ok=false when the id is unknown.
func (s *SQLiteLedger) Get(id string) (Record, bool, error) {
	row := s.db.QueryRow(`
		SELECT order_id, status, checkout_request, checkout_response, checkout_raw,
		       confirm_request, confirm_response, confirm_raw, created_at, updated_at
		FROM orders WHERE order_id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get order %s: %w", id, err)
	}
	return rec, true, nil
}

// UpdateStatus transitions the record's status and refreshes updated_at.
// Unknown ids are ignored.
func (s *SQLiteLedger) UpdateStatus(id string, status Status, extra *ConfirmArtifacts) error {
	now := time.Now().Format(timeLayout)
	var err error
	if extra != nil {
		_, err = s.db.Exec(`
			UPDATE orders SET status = ?, confirm_request = ?, confirm_response = ?,
			confirm_raw = ?, updated_at = ? WHERE order_id = ?`,
			string(status), []byte(extra.Request), []byte(extra.Response),
			[]byte(extra.Raw), now, id)
	} else {
		_, err = s.db.Exec(`UPDATE orders SET status = ?, updated_at = ? WHERE order_id = ?`,
			string(status), now, id)
	}
	if err != nil {
		return fmt.Errorf("update order %s: %w", id, err)
	}
	return nil
}

// List returns records ordered by creation time, newest first, with
// offset/limit paging. limit <= 0 means no limit.
func (s *SQLiteLedger) List(limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.Query(`
		SELECT order_id, status, checkout_request, checkout_response, checkout_raw,
		       confirm_request, confirm_response, confirm_raw, created_at, updated_at
		FROM orders ORDER BY created_at DESC, order_id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the number of stored records.
func (s *SQLiteLedger) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM orders`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var status, createdAt, updatedAt string
	var chkReq, chkResp, chkRaw, cfmReq, cfmResp, cfmRaw []byte
	if err := row.Scan(&rec.OrderID, &status, &chkReq, &chkResp, &chkRaw,
		&cfmReq, &cfmResp, &cfmRaw, &createdAt, &updatedAt); err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	rec.CheckoutRequest = chkReq
	rec.CheckoutResponse = chkResp
	rec.CheckoutRaw = chkRaw
	rec.ConfirmRequest = cfmReq
	rec.ConfirmResponse = cfmResp
	rec.ConfirmRaw = cfmRaw
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return rec, nil
}

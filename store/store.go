// Package store records generation passes in a SQLite database so that
// builds can skip class sides whose definition has not changed since their
// last successful pass.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/talc/model"
	"github.com/chazu/talc/native"
)

// ErrNotFound indicates that no pass was recorded for a class side.
var ErrNotFound = errors.New("no pass recorded")

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("store: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalReport serializes a report to canonical CBOR.
func MarshalReport(r *native.Report) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// UnmarshalReport deserializes a report from CBOR bytes.
func UnmarshalReport(data []byte) (*native.Report, error) {
	var r native.Report
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("store: unmarshal report: %w", err)
	}
	return &r, nil
}

// Pass is one recorded generation pass.
type Pass struct {
	ID          uuid.UUID
	Class       string
	Side        model.Side
	Fingerprint uint64
	Report      *native.Report
	Created     time.Time
}

// Store is a pass database.
type Store struct {
	db  *sql.DB
	log commonlog.Logger
	mu  sync.Mutex
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS passes (
		id TEXT PRIMARY KEY,
		class TEXT NOT NULL,
		side INTEGER NOT NULL,
		fingerprint INTEGER NOT NULL,
		report BLOB NOT NULL,
		created INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS passes_class_side ON passes (class, side)"); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating index: %w", err)
	}

	return &Store{db: db, log: commonlog.GetLogger("talc.store")}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores the report of a pass over a side of cls lowered against
// globals.
func (s *Store) Record(cls *model.Class, side model.Side, globals []string, report *native.Report) (*Pass, error) {
	data, err := MarshalReport(report)
	if err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}
	p := &Pass{
		ID:          uuid.New(),
		Class:       cls.Name(),
		Side:        side,
		Fingerprint: Fingerprint(cls, side, globals),
		Report:      report,
		Created:     time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		"INSERT INTO passes (id, class, side, fingerprint, report, created) VALUES (?, ?, ?, ?, ?, ?)",
		p.ID.String(), p.Class, int(p.Side), int64(p.Fingerprint), data, p.Created.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("saving pass: %w", err)
	}
	s.log.Debugf("recorded pass %s for %s %s", p.ID, p.Class, p.Side)
	return p, nil
}

// Latest returns the most recent pass over a class side.
func (s *Store) Latest(class string, side model.Side) (*Pass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRow(
		"SELECT id, class, side, fingerprint, report, created FROM passes WHERE class = ? AND side = ? ORDER BY created DESC, rowid DESC LIMIT 1",
		class, int(side),
	)
	p, err := scanPass(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, class, side)
	}
	return p, err
}

// Passes returns every pass over class, oldest first.
func (s *Store) Passes(class string) ([]*Pass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		"SELECT id, class, side, fingerprint, report, created FROM passes WHERE class = ? ORDER BY created, rowid",
		class,
	)
	if err != nil {
		return nil, fmt.Errorf("querying passes: %w", err)
	}
	defer rows.Close()

	var passes []*Pass
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, err
		}
		passes = append(passes, p)
	}
	return passes, rows.Err()
}

// Unchanged reports whether the last pass over a side of cls succeeded for
// the definition cls has now and the same global names.
func (s *Store) Unchanged(cls *model.Class, side model.Side, globals []string) (bool, error) {
	p, err := s.Latest(cls.Name(), side)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.Report.Succeeded && !p.Report.Excluded && p.Fingerprint == Fingerprint(cls, side, globals), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPass(row scanner) (*Pass, error) {
	var (
		id      string
		p       Pass
		side    int
		fp      int64
		data    []byte
		created int64
	)
	if err := row.Scan(&id, &p.Class, &side, &fp, &data, &created); err != nil {
		return nil, err
	}
	var err error
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("pass id %q: %w", id, err)
	}
	if p.Report, err = UnmarshalReport(data); err != nil {
		return nil, err
	}
	p.Side = model.Side(side)
	p.Fingerprint = uint64(fp)
	p.Created = time.Unix(0, created)
	return &p, nil
}

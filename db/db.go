package db

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DB is the database struct.
type DB struct {
	db *sql.DB
}

var (
	dbInstance *DB
	dbOnce     sync.Once
)

// ErrAlreadyProcessed is returned by ApplyOnce when the activity identifier
// already has a processed marker. Redelivery is at-least-once; application
// must be exactly-once.
var ErrAlreadyProcessed = errors.New("activity already processed")

// Open opens a database file, applies the connection pragmas and runs the
// migrations. Tests open their own files; the daemon uses GetDB.
func Open(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Configure connection pool for concurrent access
	sqldb.SetMaxOpenConns(25)
	sqldb.SetMaxIdleConns(5)
	sqldb.SetConnMaxLifetime(time.Hour)

	// Try to enable WAL2 mode, fall back to WAL if not supported
	var journalMode string
	err = sqldb.QueryRow("PRAGMA journal_mode=WAL2").Scan(&journalMode)
	if err != nil || journalMode == "delete" {
		err = sqldb.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode)
		if err != nil {
			log.Warn("Failed to enable WAL mode", "err", err)
		} else {
			log.Info("Database journal mode", "mode", journalMode)
		}
	} else {
		log.Info("Database journal mode", "mode", journalMode)
	}

	// Optimize PRAGMAs for the concurrent federation workload
	sqldb.Exec("PRAGMA synchronous = NORMAL")
	sqldb.Exec("PRAGMA cache_size = -64000")
	sqldb.Exec("PRAGMA temp_store = MEMORY")
	sqldb.Exec("PRAGMA busy_timeout = 5000")
	sqldb.Exec("PRAGMA foreign_keys = ON")
	sqldb.Exec("PRAGMA auto_vacuum = INCREMENTAL")

	database := &DB{db: sqldb}
	if err := database.RunMigrations(); err != nil {
		return nil, err
	}

	return database, nil
}

func GetDB() *DB {
	dbOnce.Do(func() {
		database, err := Open("database.db")
		if err != nil {
			panic(err)
		}
		log.Info("Database initialized with connection pooling", "maxConns", 25)
		dbInstance = database
	})

	return dbInstance
}

func (db *DB) Close() error {
	return db.db.Close()
}

// wrapTransaction runs the given function within a transaction.
func (db *DB) wrapTransaction(f func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("error starting transaction", "err", err)
		return err
	}
	for {
		err = f(tx)
		if err != nil {
			if isBusyErr(err) {
				continue
			}
			tx.Rollback()
			return err
		}
		err = tx.Commit()
		if err != nil {
			log.Error("error committing transaction", "err", err)
			return err
		}
		break
	}
	return nil
}

// InTx runs f within a plain transaction, for local-origin mutations that
// carry no idempotency marker.
func (db *DB) InTx(f func(tx *sql.Tx) error) error {
	return db.wrapTransaction(f)
}

// ApplyOnce runs f within a single transaction that also inserts the
// idempotency marker for activityURI. When the marker already exists the
// transaction is abandoned and ErrAlreadyProcessed is returned: f's
// mutations happen at most once per activity identifier, even under
// redelivery or a crash between apply and acknowledge.
func (db *DB) ApplyOnce(activityURI string, f func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(sqlInsertProcessed, activityURI, time.Now()); err != nil {
		if isConstraintErr(err) {
			return ErrAlreadyProcessed
		}
		return err
	}

	if err := f(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// IsProcessed reports whether an activity identifier already carries a
// processed marker. A cheap pre-check; ApplyOnce is the guarantee.
func (db *DB) IsProcessed(activityURI string) (bool, error) {
	var one int
	err := db.db.QueryRow(sqlSelectProcessed, activityURI).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func isBusyErr(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		return serr.Code() == sqlitelib.SQLITE_BUSY
	}
	return false
}

func isConstraintErr(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		return serr.Code()&0xff == sqlitelib.SQLITE_CONSTRAINT
	}
	return false
}

const (
	sqlInsertProcessed = `INSERT INTO processed_activities(activity_uri, processed_at) VALUES (?, ?)`
	sqlSelectProcessed = `SELECT 1 FROM processed_activities WHERE activity_uri = ?`
)

package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/letsencrypt/borp"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/iscc/iscc-hub/log"
)

// dialectMap mirrors sa/database.go's driver-name -> borp.Dialect table,
// trimmed to the two drivers the hub actually ships (spec.md §6: "SQLite in
// production, with MySQL as an optional dialect for larger deployments").
var dialectMap = map[string]borp.Dialect{
	"sqlite3": borp.SqliteDialect{},
	"mysql":   borp.MySQLDialect{Engine: "InnoDB", Encoding: "UTF8"},
}

// DB wraps a borp.DbMap with the event log / projection table mappings and
// the handful of raw-SQL helpers (pragmas, WAL mode) that don't fit the ORM.
type DB struct {
	Map    *borp.DbMap
	driver string
	logger log.Logger
}

// Open connects to driver/dsn, applies the SQLite pragmas spec.md §6
// requires of a single-writer event log, and maps the events and
// declarations tables. Grounded on sa/database.go's NewDbMap.
func Open(driver, dsn string, logger log.Logger) (*DB, error) {
	if driver == "sqlite3" {
		dsn = withImmediateTxLock(dsn)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: opening %s: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("storage: pinging %s: %w", driver, err)
	}

	if driver == "sqlite3" {
		if err := applySqlitePragmas(db); err != nil {
			return nil, err
		}
	}

	dialect, ok := dialectMap[driver]
	if !ok {
		return nil, fmt.Errorf("storage: no dialect registered for driver %q", driver)
	}

	dbMap := &borp.DbMap{Db: db, Dialect: dialect, TypeConverter: hubTypeConverter{}}
	initTables(dbMap)

	logger.Infof("storage: connected to %s database", driver)

	return &DB{Map: dbMap, driver: driver, logger: logger}, nil
}

// applySqlitePragmas sets the journal mode, sync mode, and busy timeout
// spec.md §6 requires ("journal_mode=WAL, synchronous=FULL,
// busy_timeout=5000ms"), plus foreign_keys=ON. The IMMEDIATE default
// transaction mode is set through the DSN by withImmediateTxLock.
func applySqlitePragmas(db *sql.DB) error {
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("storage: applying %q: %w", p, err)
		}
	}
	return nil
}

// initTables registers the events and declarations tables with the ORM,
// mirroring sa/database.go's initTables.
func initTables(dbMap *borp.DbMap) {
	// false: seq is assigned explicitly by the sequencer (tail.Seq + 1)
	// inside the write transaction, not generated by the database.
	eventsTable := dbMap.AddTableWithName(EventRow{}, "events").SetKeys(false, "Seq")
	// Idempotency (spec.md §4.D step 8) rides on this constraint: the
	// sequencer detects nonce reuse by translating the driver's unique
	// violation rather than pre-checking with a SELECT.
	eventsTable.ColMap("Nonce").SetUnique(true)
	dbMap.AddTableWithName(Declaration{}, "declarations").SetKeys(false, "IsccID")
}

// CreateTablesIfNotExists creates the events and declarations tables from
// the borp struct mappings. Production deployments manage schema through
// migrations; this is for tests and the sandbox quickstart, mirroring
// sa/database.go's "call CreateTablesIfNotExists on the DbMap" comment.
func (d *DB) CreateTablesIfNotExists() error {
	return d.Map.CreateTablesIfNotExists()
}

// Driver reports the underlying SQL driver name ("sqlite3" or "mysql").
func (d *DB) Driver() string {
	return d.driver
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	return d.Map.Db.Close()
}

// withImmediateTxLock adds mattn/go-sqlite3's _txlock=immediate DSN
// parameter, which makes every transaction opened on the connection issue
// BEGIN IMMEDIATE rather than a bare (deferred) BEGIN. Two writers racing
// a deferred transaction can each believe they hold the lock until their
// first write statement; IMMEDIATE acquires the write lock at BEGIN time,
// which is what the single-writer sequencer (spec.md §4.D) depends on.
func withImmediateTxLock(dsn string) string {
	if strings.Contains(dsn, "_txlock=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_txlock=immediate"
}

// BeginImmediate starts a write transaction. On MySQL there is no
// BEGIN IMMEDIATE equivalent; a plain transaction plus row locking on the
// tail read serializes writers there instead.
func (d *DB) BeginImmediate() (*borp.Transaction, error) {
	return d.Map.Begin()
}

/*
Package journal keeps a SQL record of the operations submitted by the wallet
so that a later process can check them and resume the ones that span two
chains, like the finalization of a withdrawal.

The schema is managed with migration files placed under
journal/migrations/<driver>, executed by order of the file name.  Both
PostgreSQL ("postgres") and SQLite ("sqlite3") are supported.
*/
package journal

import (
	"database/sql"
	"fmt"
	"math/big"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/gobuffalo/packr/v2"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/zkwallet/common"
	"github.com/hermeznetwork/zkwallet/log"
	"github.com/jmoiron/sqlx"

	//nolint:errcheck // driver for postgres DB
	_ "github.com/lib/pq"
	//nolint:errcheck // driver for sqlite DB
	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/russross/meddler"
)

const (
	// DriverPostgres is the PostgreSQL driver name
	DriverPostgres = "postgres"
	// DriverSQLite is the SQLite driver name
	DriverSQLite = "sqlite3"
)

// Operation kinds
const (
	KindTransfer         = "transfer"
	KindDeposit          = "deposit"
	KindWithdraw         = "withdraw"
	KindFinalizeWithdraw = "finalize_withdraw"
	KindDeploy           = "deploy"
)

// Operation states not covered by common.DepositState and
// common.WithdrawalState
const (
	StateSubmitted = "submitted"
	StateIncluded  = "included"
	StateFailed    = "failed"
)

var finalStates = map[string]string{
	KindTransfer:         StateIncluded,
	KindDeploy:           StateIncluded,
	KindDeposit:          common.DepositL2Included.String(),
	KindWithdraw:         common.WithdrawalL1Included.String(),
	KindFinalizeWithdraw: common.WithdrawalL1Included.String(),
}

var migrations = map[string]*migrate.PackrMigrationSource{
	DriverPostgres: {Box: packr.New("zkwallet-journal-postgres", "./migrations/postgres")},
	DriverSQLite:   {Box: packr.New("zkwallet-journal-sqlite3", "./migrations/sqlite3")},
}

var dialects = map[string]*meddler.Database{
	DriverPostgres: meddler.PostgreSQL,
	DriverSQLite:   meddler.SQLite,
}

func init() {
	meddler.Register("bigintnull", BigIntNullMeddler{})
}

// Operation is a submitted transaction of a wallet operation
type Operation struct {
	ID    int64  `meddler:"id,pk"`
	Kind  string `meddler:"kind"`
	Chain string `meddler:"chain"`
	// TxHash is the hash of the submitted transaction
	TxHash ethCommon.Hash `meddler:"tx_hash"`
	// ParentHash links a withdrawal finalization to its withdrawal
	ParentHash *ethCommon.Hash    `meddler:"parent_hash"`
	From       ethCommon.Address  `meddler:"from_addr"`
	To         *ethCommon.Address `meddler:"to_addr"`
	Amount     *big.Int           `meddler:"amount,bigintnull"`
	// State is the last known state, as named by common.DepositState and
	// common.WithdrawalState
	State     string    `meddler:"state"`
	CreatedAt time.Time `meddler:"created_at,utctime"`
	UpdatedAt time.Time `meddler:"updated_at,utctime"`
}

// Journal stores the operations in a SQL database
type Journal struct {
	db      *sqlx.DB
	dialect *meddler.Database
}

// MigrationsUp runs the SQL migrations Up
func MigrationsUp(db *sql.DB, driver string) error {
	source, ok := migrations[driver]
	if !ok {
		return tracerr.Wrap(fmt.Errorf("unsupported driver %q", driver))
	}
	nMigrations, err := migrate.Exec(db, driver, source, migrate.Up)
	if err != nil {
		return tracerr.Wrap(err)
	}
	log.Debugw("successfully ran migrations Up", "n", nMigrations)
	return nil
}

// MigrationsDown runs all the SQL migrations Down
func MigrationsDown(db *sql.DB, driver string) error {
	source, ok := migrations[driver]
	if !ok {
		return tracerr.Wrap(fmt.Errorf("unsupported driver %q", driver))
	}
	nMigrations, err := migrate.Exec(db, driver, source, migrate.Down)
	if err != nil {
		return tracerr.Wrap(err)
	}
	log.Debugw("successfully ran migrations Down", "n", nMigrations)
	return nil
}

// Open connects to the database and runs the migrations.  For postgres the
// dsn is a connection string such as "host=localhost port=5432 user=zk
// password=... dbname=zk sslmode=disable"; for sqlite3 it's a file name.
func Open(driver, dsn string) (*Journal, error) {
	if _, ok := dialects[driver]; !ok {
		return nil, tracerr.Wrap(fmt.Errorf("unsupported driver %q", driver))
	}
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	if driver == DriverSQLite {
		// A single connection avoids "database is locked" errors
		db.SetMaxOpenConns(1)
	}
	j, err := NewJournal(db, driver)
	if err != nil {
		if errClose := db.Close(); errClose != nil {
			log.Errorw("db.Close", "err", errClose)
		}
		return nil, tracerr.Wrap(err)
	}
	return j, nil
}

// NewJournal creates a Journal over an open database, running the
// migrations
func NewJournal(db *sqlx.DB, driver string) (*Journal, error) {
	dialect, ok := dialects[driver]
	if !ok {
		return nil, tracerr.Wrap(fmt.Errorf("unsupported driver %q", driver))
	}
	if err := MigrationsUp(db.DB, driver); err != nil {
		return nil, tracerr.Wrap(err)
	}
	return &Journal{db: db, dialect: dialect}, nil
}

// DB returns the underlying database
func (j *Journal) DB() *sqlx.DB {
	return j.db
}

// Close closes the database
func (j *Journal) Close() error {
	return tracerr.Wrap(j.db.Close())
}

// Add stores a new operation and sets its ID
func (j *Journal) Add(op *Operation) error {
	now := time.Now().UTC()
	op.ID = 0
	op.CreatedAt = now
	op.UpdatedAt = now
	return tracerr.Wrap(j.dialect.Insert(j.db, "operation", op))
}

// UpdateState sets the state of the operation of txHash
func (j *Journal) UpdateState(txHash ethCommon.Hash, state string) error {
	res, err := j.db.Exec(j.db.Rebind("UPDATE operation SET state = ?, updated_at = ? WHERE tx_hash = ?"),
		state, time.Now().UTC(), txHash)
	if err != nil {
		return tracerr.Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return tracerr.Wrap(err)
	}
	if n == 0 {
		return tracerr.Wrap(sql.ErrNoRows)
	}
	return nil
}

// GetByHash returns the operation of txHash
func (j *Journal) GetByHash(txHash ethCommon.Hash) (*Operation, error) {
	op := &Operation{}
	err := j.dialect.QueryRow(j.db, op, j.db.Rebind("SELECT * FROM operation WHERE tx_hash = ?"), txHash)
	return op, tracerr.Wrap(err)
}

// GetChildren returns the operations that continue the operation of
// txHash, like the finalizations of a withdrawal
func (j *Journal) GetChildren(txHash ethCommon.Hash) ([]*Operation, error) {
	var ops []*Operation
	err := j.dialect.QueryAll(j.db, &ops,
		j.db.Rebind("SELECT * FROM operation WHERE parent_hash = ? ORDER BY id"), txHash)
	return ops, tracerr.Wrap(err)
}

// List returns the last operations, newest first.  kind filters by kind if
// it's not empty.
func (j *Journal) List(kind string, limit uint) ([]*Operation, error) {
	var ops []*Operation
	var err error
	if kind == "" {
		err = j.dialect.QueryAll(j.db, &ops,
			j.db.Rebind("SELECT * FROM operation ORDER BY id DESC LIMIT ?"), limit)
	} else {
		err = j.dialect.QueryAll(j.db, &ops,
			j.db.Rebind("SELECT * FROM operation WHERE kind = ? ORDER BY id DESC LIMIT ?"), kind, limit)
	}
	return ops, tracerr.Wrap(err)
}

// Unfinished returns the operations that didn't reach the final state of
// their kind and didn't fail, oldest first
func (j *Journal) Unfinished() ([]*Operation, error) {
	var ops []*Operation
	err := j.dialect.QueryAll(j.db, &ops,
		j.db.Rebind("SELECT * FROM operation WHERE state <> ? ORDER BY id"), StateFailed)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	unfinished := ops[:0]
	for _, op := range ops {
		if op.State != finalStates[op.Kind] {
			unfinished = append(unfinished, op)
		}
	}
	return unfinished, nil
}

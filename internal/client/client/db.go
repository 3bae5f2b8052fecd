package client

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/formsync/internal/client/migrations"
	"github.com/dmitrijs2005/formsync/internal/client/repositories/assets"
	"github.com/dmitrijs2005/formsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/formsync/internal/client/repositories/queue"
	"github.com/dmitrijs2005/formsync/internal/clock"
	"github.com/dmitrijs2005/formsync/internal/cryptox"
	"github.com/dmitrijs2005/formsync/internal/dbx"
	"github.com/dmitrijs2005/formsync/internal/filex"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	sqliteFileName    = "formsync.db"
	sqliteBusyTimeout = 5000
)

var (
	ErrUnknownDriver   = errors.New("unknown store driver")
	ErrWrongPassphrase = errors.New("wrong storage passphrase")
	ErrSealingMismatch = errors.New("storage sealing mismatch")
)

var storageCheck = []byte("formsync storage check v1")

// Repositories bundles the stores used by the client.
type Repositories struct {
	Queue    queue.Repository
	Metadata metadata.Repository
	Assets   assets.Repository

	dbs []*sql.DB
}

// Close closes every database handle opened by OpenRepositories.
func (r *Repositories) Close() error {
	var errs []error
	for _, db := range r.dbs {
		errs = append(errs, db.Close())
	}
	return errors.Join(errs...)
}

// StoreOptions selects where the queue lives and how it is protected.
type StoreOptions struct {
	DataDir     string
	Driver      string
	PostgresDSN string
	Passphrase  []byte
	Clock       clock.Clock
}

func RunMigrations(ctx context.Context, db *sql.DB, dialect dbx.Dialect) error {
	return migrations.Up(ctx, db, dialect)
}

// InitDatabase opens the database and applies migrations. SQLite handles are
// limited to a single connection with a busy timeout, so writers serialize.
func InitDatabase(ctx context.Context, dialect dbx.Dialect, dsn string) (*sql.DB, error) {
	driver := "sqlite"
	if dialect == dbx.DialectPostgres {
		driver = "pgx"
	} else {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if dialect == dbx.DialectSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := RunMigrations(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)", dsn, sep, sqliteBusyTimeout)
}

// OpenRepositories opens the local SQLite database and, for the postgres
// driver, a shared queue database. The sealing salt is kept with the queue.
func OpenRepositories(ctx context.Context, opts StoreOptions) (*Repositories, error) {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}

	dir, err := filex.EnsureSubDir("", opts.DataDir)
	if err != nil {
		return nil, err
	}

	local, err := InitDatabase(ctx, dbx.DialectSQLite, filepath.Join(dir, sqliteFileName))
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	repos := &Repositories{
		Metadata: metadata.NewSQLiteRepository(local),
		Assets:   assets.NewSQLiteRepository(local),
		dbs:      []*sql.DB{local},
	}

	queueDB := local
	queueMeta := repos.Metadata
	dialect := dbx.DialectSQLite

	switch opts.Driver {
	case "", DriverSQLite:
	case DriverPostgres:
		pg, err := InitDatabase(ctx, dbx.DialectPostgres, opts.PostgresDSN)
		if err != nil {
			_ = repos.Close()
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		repos.dbs = append(repos.dbs, pg)
		queueDB = pg
		queueMeta = metadata.NewPostgresRepository(pg)
		dialect = dbx.DialectPostgres
	default:
		_ = repos.Close()
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}

	if err := checkSealing(ctx, queueDB, queueMeta, len(opts.Passphrase) > 0); err != nil {
		_ = repos.Close()
		return nil, err
	}

	qopts := []queue.Option{queue.WithClock(opts.Clock)}
	if len(opts.Passphrase) > 0 {
		sealer, err := LoadSealer(ctx, queueMeta, opts.Passphrase)
		if err != nil {
			_ = repos.Close()
			return nil, err
		}
		qopts = append(qopts, queue.WithSealer(sealer))
	}
	repos.Queue = queue.NewSQLRepository(queueDB, dialect, qopts...)

	return repos, nil
}

// checkSealing refuses to open a queue whose rows were written in the other
// mode: a sealed queue without a passphrase, or a passphrase over a queue
// that already holds plain rows.
func checkSealing(ctx context.Context, db *sql.DB, meta metadata.Repository, sealed bool) error {
	salt, err := meta.Get(ctx, metadata.KeyStorageSalt)
	if err != nil {
		return fmt.Errorf("load storage salt: %w", err)
	}

	if !sealed {
		if salt != nil {
			return fmt.Errorf("%w: queue is sealed, a passphrase is required", ErrSealingMismatch)
		}
		return nil
	}
	if salt != nil {
		return nil
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue_entries`).Scan(&n); err != nil {
		return fmt.Errorf("count queue: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: queue holds %d unsealed entries", ErrSealingMismatch, n)
	}
	return nil
}

// LoadSealer derives the at-rest key from passphrase and the stored salt,
// creating the salt and the check value on first use. A passphrase that
// cannot open the stored check value yields ErrWrongPassphrase.
func LoadSealer(ctx context.Context, meta metadata.Repository, passphrase []byte) (*cryptox.Sealer, error) {
	salt, err := meta.Get(ctx, metadata.KeyStorageSalt)
	if err != nil {
		return nil, fmt.Errorf("load storage salt: %w", err)
	}
	if salt == nil {
		salt, err = cryptox.RandomBytes(cryptox.SaltSize)
		if err != nil {
			return nil, fmt.Errorf("generate storage salt: %w", err)
		}
		if err := meta.Set(ctx, metadata.KeyStorageSalt, salt); err != nil {
			return nil, fmt.Errorf("save storage salt: %w", err)
		}
	}

	key := cryptox.DeriveKey(passphrase, salt)
	defer cryptox.Wipe(key)

	sealer, err := cryptox.NewSealer(key)
	if err != nil {
		return nil, err
	}

	check, err := meta.Get(ctx, metadata.KeyStorageCheck)
	if err != nil {
		return nil, fmt.Errorf("load storage check: %w", err)
	}
	if check == nil {
		check, err = sealer.Seal(storageCheck)
		if err != nil {
			return nil, fmt.Errorf("seal storage check: %w", err)
		}
		if err := meta.Set(ctx, metadata.KeyStorageCheck, check); err != nil {
			return nil, fmt.Errorf("save storage check: %w", err)
		}
		return sealer, nil
	}

	plain, err := sealer.Open(check)
	if err != nil || !bytes.Equal(plain, storageCheck) {
		return nil, ErrWrongPassphrase
	}
	return sealer, nil
}

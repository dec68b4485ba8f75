// Package kvstore opens an a-h/kv Store against one of the three backends
// this repo can talk to (sqlite, rqlite, postgres). It exists as its own
// package, independent of any one caller's domain, because the backend
// selection and connection wiring is identical regardless of what the
// store ends up holding — depot's own store.New does the same selection
// for package metadata; here it's reused for run-history (ledger), not
// copied into the ledger package itself.
package kvstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/a-h/kv"
	"github.com/a-h/kv/postgreskv"
	"github.com/a-h/kv/rqlitekv"
	"github.com/a-h/kv/sqlitekv"
	"github.com/jackc/pgx/v5/pgxpool"
	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Open connects to a kv.Store backend and runs its schema initialization.
func Open(ctx context.Context, dbType, dsn string) (store kv.Store, closer func() error, err error) {
	store, closer, err = dial(dbType, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err = store.Init(ctx); err != nil {
		_ = closer()
		return nil, nil, err
	}
	return store, closer, nil
}

func dial(dbType, dsn string) (kv.Store, func() error, error) {
	switch dbType {
	case "sqlite":
		return dialSqlite(dsn)
	case "rqlite":
		return dialRqlite(dsn)
	case "postgres":
		return dialPostgres(dsn)
	default:
		return nil, nil, fmt.Errorf("kvstore: unsupported database type: %s", dbType)
	}
}

func dialSqlite(dsn string) (kv.Store, func() error, error) {
	dsnURI, err := url.Parse(dsn)
	if err != nil {
		return nil, nil, err
	}
	opts := sqlitex.PoolOptions{
		Flags: sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenURI,
	}
	if strings.EqualFold(dsnURI.Query().Get("_journal_mode"), "wal") {
		opts.Flags |= sqlite.OpenWAL
	}
	pool, err := sqlitex.NewPool(dsn, opts)
	if err != nil {
		return nil, nil, err
	}
	return sqlitekv.NewStore(pool), pool.Close, nil
}

func dialRqlite(dsn string) (kv.Store, func() error, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, nil, err
	}
	client := rqlitehttp.NewClient(dsn, nil)
	if u.User != nil {
		pwd, _ := u.User.Password()
		client.SetBasicAuth(u.User.Username(), pwd)
	}
	return rqlitekv.NewStore(client), func() error { return nil }, nil
}

func dialPostgres(dsn string) (kv.Store, func() error, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, nil, err
	}
	closer := func() error {
		pool.Close()
		return nil
	}
	return postgreskv.NewStore(pool), closer, nil
}

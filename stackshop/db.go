package stackshop

import (
	"context"
	"database/sql"
	"os"

	"encore.app/internal/stackshopdb"
	"encore.dev/storage/sqldb"
)

var stackshopDB = newDatabase("stackshop_server", sqldb.DatabaseConfig{
	Migrations: "./migrations",
})

func newDatabase(name string, cfg sqldb.DatabaseConfig) *sqldb.Database {
	// In plain `go test` the Encore SDK stubs panic. Avoid that by returning nil;
	// tests inject in-memory stores instead.
	if os.Getenv("ENCORE_CFG") == "" {
		return nil
	}
	return sqldb.NewDatabase(name, cfg)
}

func openStackshopDB(ctx context.Context) (*sql.DB, error) {
	return stackshopdb.Open(ctx, stackshopDB)
}

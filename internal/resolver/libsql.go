package resolver

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// libsqlConnector opens tenant databases over the libsql wire protocol.
type libsqlConnector struct{}

// NewLibsqlConnector returns the production Connector.
func NewLibsqlConnector() Connector { return libsqlConnector{} }

func (libsqlConnector) Open(ctx context.Context, url, token string) (*sql.DB, error) {
	db, err := sql.Open("libsql", url+"?authToken="+token)
	if err != nil {
		return nil, fmt.Errorf("open tenant database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping tenant database: %w", err)
	}
	return db, nil
}

// Package sqlstore provides a SQL storage backend for the authorization server
// built on bun. SQLite, PostgreSQL and MySQL are supported.
//
// Client secrets are never stored in plaintext: SaveClient replaces Secret with
// a bcrypt hash in SecretHash. Authorization code deletion is a single DELETE
// whose affected row count tells the caller whether it won the redemption.
//
//	store, err := sqlstore.Open(sqlstore.Config{
//	    Driver: sqlstore.DriverPostgres,
//	    DSN:    "postgres://oauth:secret@db:5432/oauth?sslmode=disable",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// MySQL DSNs do not need parseTime; every timestamp is stored as unix seconds.
package sqlstore

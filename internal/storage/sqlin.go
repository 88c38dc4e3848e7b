package storage

import "github.com/jmoiron/sqlx"

// sqlxIn expands a `?`-placeholder query containing slice arguments (via
// sqlx.In) and rebinds it to Postgres's `$1` placeholder style.
func sqlxIn(query string, args ...interface{}) (string, []interface{}, error) {
	q, expanded, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return sqlx.Rebind(sqlx.DOLLAR, q), expanded, nil
}

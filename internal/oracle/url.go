package oracle

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// ParseURL splits a postgres:// URL into libpq connection keywords.
func ParseURL(url string) (map[string]string, error) {
	if url == "postgresql://" || url == "postgres://" {
		return map[string]string{}, nil
	}

	raw, err := pq.ParseURL(url)
	if err != nil {
		return nil, err
	}

	res := map[string]string{}

	unescaper := strings.NewReplacer(`\'`, `'`, `\\`, `\`)

	for keypair := range strings.SplitSeq(raw, " ") {
		parts := strings.SplitN(keypair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("unexpected keypair %s from pq", keypair)
		}

		// pq quotes and escapes values; undo both.
		value := strings.TrimSuffix(strings.TrimPrefix(parts[1], "'"), "'")
		res[parts[0]] = unescaper.Replace(value)
	}

	return res, nil
}

// InstanceKey returns postgresql://host:port/dbname for a DSN, which
// identifies the server in logs and metrics without exposing credentials.
func InstanceKey(dsn string) (string, error) {
	s, err := ParseURL(dsn)
	if err != nil {
		return "", fmt.Errorf("cannot parse DSN: %w", err)
	}

	if _, ok := s["host"]; !ok {
		s["host"] = "localhost"
		s["port"] = "5432"
	}

	hostport := s["host"]
	if p, ok := s["port"]; ok {
		hostport += ":" + p
	}
	return fmt.Sprintf("postgresql://%s/%s", hostport, s["dbname"]), nil
}

// Open opens a connection pool for dsn using the lib/pq driver.
func Open(dsn string) (*sql.DB, error) {
	if _, err := ParseURL(dsn); err != nil {
		return nil, &OracleError{Op: "connect", Err: fmt.Errorf("invalid DSN: %w", err)}
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, &OracleError{Op: "connect", Err: err}
	}
	return db, nil
}

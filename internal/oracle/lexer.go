package oracle

import (
	"errors"
	"fmt"

	"github.com/DataDog/go-sqllexer"
)

var errMultipleStatements = errors.New("query contains more than one statement")

// checkSingleStatement rejects input that carries statements after the
// first one. EXPLAIN over the simple query protocol would run them.
func checkSingleStatement(query string) error {
	lexer := sqllexer.New(query, sqllexer.WithDBMS(sqllexer.DBMSPostgres))

	terminated := false
	for {
		token := lexer.Scan()
		switch token.Type {
		case sqllexer.EOF:
			return nil
		case sqllexer.ERROR:
			return fmt.Errorf("lexer failed to scan query, offending token value: %s", token.Value)
		case sqllexer.SPACE, sqllexer.COMMENT, sqllexer.MULTILINE_COMMENT:
			continue
		}
		if token.Value == ";" {
			terminated = true
			continue
		}
		if terminated {
			return errMultipleStatements
		}
	}
}

// redactSQL obfuscates literals so queries can be logged.
func redactSQL(sql string) string {
	return sqllexer.NewObfuscator().Obfuscate(sql)
}

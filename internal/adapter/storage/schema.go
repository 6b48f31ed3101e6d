package storage

import (
	_ "embed"
	"strings"
)

var (
	//go:embed schema/mysql.sql
	mysqlSchema string

	//go:embed schema/postgres.sql
	postgresSchema string
)

// splitStatements breaks a schema file into single statements. The MySQL
// driver rejects multi-statement Exec unless multiStatements is enabled.
func splitStatements(schema string) []string {
	var stmts []string
	for _, s := range strings.Split(schema, ";") {
		if s = strings.TrimSpace(s); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

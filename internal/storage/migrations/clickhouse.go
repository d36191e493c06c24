package migrations

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// ClickhouseDB is satisfied by a clickhouse driver connection.
type ClickhouseDB interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// ApplyClickhouse runs the embedded attempt journal schema on conn, which must
// already target the journal database. Statements are idempotent
// (IF NOT EXISTS), so every start applies all of them.
func ApplyClickhouse(ctx context.Context, conn ClickhouseDB, log logrus.FieldLogger) error {
	if log == nil {
		log = logrus.StandardLogger()
	}
	migrations, err := load(ClickhouseFS, "clickhouse")
	if err != nil {
		return err
	}

	for _, m := range migrations {
		stmts, err := splitStatements(m.SQL)
		if err != nil {
			return fmt.Errorf("migration %s: %w", m.Version, err)
		}
		for _, stmt := range stmts {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", m.Version, err)
			}
		}
		log.WithField("version", m.Version).Debug("clickhouse migration applied")
	}
	return nil
}

// splitStatements splits on semicolons after dropping "--" comment lines.
// The native protocol runs one statement per Exec, and the splitter does not
// understand quoting, so a semicolon inside a string literal is an error.
func splitStatements(input string) ([]string, error) {
	var lines []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		lines = append(lines, line)
	}
	joined := strings.Join(lines, "\n")

	inString := false
	for i := 0; i < len(joined); i++ {
		switch joined[i] {
		case '\'':
			if inString && i+1 < len(joined) && joined[i+1] == '\'' {
				i++
				continue
			}
			inString = !inString
		case ';':
			if inString {
				return nil, fmt.Errorf("semicolon inside string literal at offset %d", i)
			}
		}
	}

	var stmts []string
	for _, part := range strings.Split(joined, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}

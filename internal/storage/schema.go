// Copyright 2026 MarkdownFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const SchemaVersion = "1"

// DefaultBusyTimeout is the busy_timeout in milliseconds.
const DefaultBusyTimeout = 5000

// EnvBusyTimeout overrides DefaultBusyTimeout.
const EnvBusyTimeout = "MARKDOWNFS_BUSY_TIMEOUT"

// RegistryFileName is the registry database name inside the config dir.
const RegistryFileName = "mounts.db"

// BusyTimeout returns the busy_timeout value: env override or default.
func BusyTimeout() int {
	if val := os.Getenv(EnvBusyTimeout); val != "" {
		if timeout, err := strconv.Atoi(val); err == nil && timeout > 0 {
			return timeout
		}
	}
	return DefaultBusyTimeout
}

// BuildDSN builds the libsql DSN for a local registry file.
func BuildDSN(path string) string {
	return fmt.Sprintf("file:%s", path)
}

const registrySchema = `
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS mounts (
    id TEXT PRIMARY KEY,
    backing TEXT NOT NULL,
    mountpoint TEXT NOT NULL UNIQUE,
    transport TEXT NOT NULL,
    pid INTEGER NOT NULL,
    started_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_mounts_pid ON mounts(pid);
`

const initRegistry = `
INSERT OR IGNORE INTO schema_info (key, value) VALUES ('version', ?);
INSERT OR IGNORE INTO schema_info (key, value) VALUES ('type', 'registry');
`

func execPragma(db *sql.DB, pragma string) error {
	rows, err := db.Query(pragma)
	if err != nil {
		return err
	}
	rows.Close()
	return nil
}

// applyPragmas sets PRAGMAs after opening a libsql connection; libsql
// ignores DSN-based pragma parameters.
func applyPragmas(db *sql.DB) error {
	// busy_timeout first so journal_mode waits for locks
	if err := execPragma(db, fmt.Sprintf("PRAGMA busy_timeout = %d", BusyTimeout())); err != nil {
		return fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if err := execPragma(db, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to set journal_mode=WAL: %w", err)
	}
	if err := execPragma(db, "PRAGMA synchronous=NORMAL"); err != nil {
		return fmt.Errorf("failed to set synchronous=NORMAL: %w", err)
	}
	return nil
}

// execStatements executes SQL statements separated by semicolons one at a
// time; the libsql driver rejects multi-statement Exec.
func execStatements(db *sql.DB, sqlScript string, args ...any) error {
	argIdx := 0
	for _, stmt := range splitStatements(sqlScript) {
		placeholders := strings.Count(stmt, "?")
		if argIdx+placeholders > len(args) {
			return fmt.Errorf("statement needs %d more arguments: %s", argIdx+placeholders-len(args), stmt)
		}
		stmtArgs := args[argIdx : argIdx+placeholders]
		argIdx += placeholders
		if _, err := db.Exec(stmt, stmtArgs...); err != nil {
			return err
		}
	}
	return nil
}

// splitStatements splits a SQL script into individual statements
func splitStatements(script string) []string {
	var statements []string
	var current strings.Builder

	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			statements = append(statements, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}

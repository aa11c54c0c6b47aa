package task

import "github.com/starford/ambient/internal/sqlitedb"

// Files written before the version table existed already carry some of these
// columns; AddColumn skips those.
var migrations = []sqlitedb.Migration{
	{
		Version: 1,
		Name:    "create structured_todos",
		Up: sqlitedb.Exec(`
			CREATE TABLE IF NOT EXISTS structured_todos (
				id          TEXT PRIMARY KEY,
				content     TEXT NOT NULL,
				priority    TEXT,
				created_at  TEXT NOT NULL,
				is_executed INTEGER NOT NULL DEFAULT 0
			);`),
	},
	{Version: 2, Name: "add project_id", Up: sqlitedb.AddColumn("structured_todos", "project_id", "TEXT")},
	{Version: 3, Name: "add execution_output", Up: sqlitedb.AddColumn("structured_todos", "execution_output", "TEXT")},
	{Version: 4, Name: "add execution_date", Up: sqlitedb.AddColumn("structured_todos", "execution_date", "TEXT")},
	{
		Version: 5,
		Name:    "create todo_executions",
		Up: sqlitedb.Exec(`
			CREATE TABLE IF NOT EXISTS todo_executions (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				todo_id     TEXT NOT NULL,
				output      TEXT NOT NULL,
				executed_at TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_todo_executions_todo ON todo_executions(todo_id);`),
	},
	{
		Version: 6,
		Name:    "index created_at and project_id",
		Up: sqlitedb.Exec(`
			CREATE INDEX IF NOT EXISTS idx_todos_created_at ON structured_todos(created_at);
			CREATE INDEX IF NOT EXISTS idx_todos_project ON structured_todos(project_id);`),
	},
}

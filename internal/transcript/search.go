package transcript

import (
	"context"
	"database/sql"
	"strings"
	"unicode/utf8"

	"github.com/starford/ambient/internal/apperr"
	"github.com/starford/ambient/internal/lane"
	"github.com/starford/ambient/internal/models"
)

// The trigram tokenizer matches any substring of three or more characters,
// so whole words and fragments of words both hit.
const ftsSchemaSQL = `
CREATE VIRTUAL TABLE IF NOT EXISTS transcripts_fts USING fts5(
	text,
	content = 'transcripts',
	content_rowid = 'id',
	tokenize = 'trigram'
);

CREATE TRIGGER IF NOT EXISTS transcripts_fts_ai AFTER INSERT ON transcripts BEGIN
	INSERT INTO transcripts_fts(rowid, text) VALUES (new.id, new.text);
END;

CREATE TRIGGER IF NOT EXISTS transcripts_fts_ad AFTER DELETE ON transcripts BEGIN
	INSERT INTO transcripts_fts(transcripts_fts, rowid, text) VALUES ('delete', old.id, old.text);
END;
`

const minTrigramRunes = 3

// ensureFTS creates the projection and backfills it when the table is new,
// e.g. for a file first written by a build without FTS5.
func ensureFTS(ctx context.Context, db *sql.DB) error {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'transcripts_fts'`).Scan(&n)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, ftsSchemaSQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO transcripts_fts(transcripts_fts) VALUES ('rebuild')`); err != nil {
		return err
	}
	return tx.Commit()
}

// Search returns transcripts containing every term of query, newest first.
// A blank query yields no results.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]models.TranscriptRecord, error) {
	if !s.Available() {
		return nil, apperr.ErrUnavailable
	}
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return []models.TranscriptRecord{}, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	jobCtx := context.WithoutCancel(ctx)
	return lane.Query(ctx, s.lane, func() ([]models.TranscriptRecord, error) {
		if s.fts && trigramable(terms) {
			return s.query(jobCtx, `
				SELECT t.id, t.created_at, t.duration, t.text, t.audio_path
				FROM transcripts_fts f
				JOIN transcripts t ON t.id = f.rowid
				WHERE transcripts_fts MATCH ?
				ORDER BY t.id DESC
				LIMIT ?`, matchExpr(terms), limit)
		}
		where, args := likeClause(terms)
		args = append(args, limit)
		return s.query(jobCtx, `
			SELECT id, created_at, duration, text, audio_path
			FROM transcripts
			WHERE `+where+`
			ORDER BY id DESC
			LIMIT ?`, args...)
	})
}

func trigramable(terms []string) bool {
	for _, t := range terms {
		if utf8.RuneCountInString(t) < minTrigramRunes {
			return false
		}
	}
	return true
}

// matchExpr quotes every term so FTS5 operators and punctuation in user
// input are matched literally. Adjacent strings are ANDed.
func matchExpr(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likeClause(terms []string) (string, []any) {
	conds := make([]string, len(terms))
	args := make([]any, len(terms))
	for i, t := range terms {
		conds[i] = `text LIKE ? ESCAPE '\'`
		args[i] = "%" + likeEscaper.Replace(t) + "%"
	}
	return strings.Join(conds, " AND "), args
}

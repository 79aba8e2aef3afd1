package store

import (
	"context"
	"strings"
)

// FileHit is one full-text match against file content or path.
type FileHit struct {
	FileID  string  `gorm:"column:file_id"`
	Path    string  `gorm:"column:path"`
	Score   float64 `gorm:"column:score"`
	Snippet string  `gorm:"column:snippet"`
}

// AppendHit is one full-text match against append content.
type AppendHit struct {
	Seq      uint64  `gorm:"column:seq"`
	FileID   string  `gorm:"column:file_id"`
	PublicID string  `gorm:"column:public_id"`
	Path     string  `gorm:"column:path"`
	Author   string  `gorm:"column:author"`
	Type     string  `gorm:"column:type"`
	Status   string  `gorm:"column:status"`
	Score    float64 `gorm:"column:score"`
	Snippet  string  `gorm:"column:snippet"`
}

// SearchFiles runs ranked full-text search over live files in a workspace.
// folderPrefix narrows the search to a subtree; empty means the whole
// workspace. Results come back best-first.
func (s *Store) SearchFiles(ctx context.Context, workspaceID, query, folderPrefix string, limit int) ([]FileHit, error) {
	if limit <= 0 {
		limit = 50
	}
	var hits []FileHit

	if s.Type() == DatabaseTypeSQLite {
		sql := `SELECT f.id AS file_id, f.path AS path,
			bm25(files_fts) AS score,
			snippet(files_fts, 3, '**', '**', '…', 16) AS snippet
			FROM files_fts
			JOIN files f ON f.id = files_fts.file_id
			WHERE files_fts MATCH ? AND files_fts.workspace_id = ? AND f.deleted_at IS NULL`
		args := []any{ftsQuery(query), workspaceID}
		if folderPrefix != "" && folderPrefix != "/" {
			sql += ` AND f.path LIKE ? ESCAPE '\'`
			args = append(args, likePrefix(folderPrefix))
		}
		// bm25 scores are negative, lower is better.
		sql += ` ORDER BY score ASC LIMIT ?`
		args = append(args, limit)
		err := s.db.WithContext(ctx).Raw(sql, args...).Scan(&hits).Error
		return hits, err
	}

	sql := `SELECT f.id AS file_id, f.path AS path,
		ts_rank(to_tsvector('english', f.content), q) AS score,
		ts_headline('english', f.content, q, 'MaxWords=16') AS snippet
		FROM files f, websearch_to_tsquery('english', ?) q
		WHERE f.workspace_id = ? AND f.deleted_at IS NULL
		AND to_tsvector('english', f.content) @@ q`
	args := []any{query, workspaceID}
	if folderPrefix != "" && folderPrefix != "/" {
		sql += ` AND f.path LIKE ? ESCAPE '\'`
		args = append(args, likePrefix(folderPrefix))
	}
	sql += ` ORDER BY score DESC LIMIT ?`
	args = append(args, limit)
	err := s.db.WithContext(ctx).Raw(sql, args...).Scan(&hits).Error
	return hits, err
}

// SearchAppends runs ranked full-text search over append previews in a
// workspace, with optional type, status, and author filters.
func (s *Store) SearchAppends(ctx context.Context, workspaceID, query, folderPrefix, typ, status, author string, limit int) ([]AppendHit, error) {
	if limit <= 0 {
		limit = 50
	}
	var hits []AppendHit

	if s.Type() == DatabaseTypeSQLite {
		sql := `SELECT a.seq AS seq, a.file_id AS file_id, a.public_id AS public_id,
			f.path AS path, a.author AS author, a.type AS type, a.status AS status,
			bm25(appends_fts) AS score,
			snippet(appends_fts, 3, '**', '**', '…', 16) AS snippet
			FROM appends_fts
			JOIN appends a ON a.seq = appends_fts.append_seq
			JOIN files f ON f.id = a.file_id
			WHERE appends_fts MATCH ? AND appends_fts.workspace_id = ? AND f.deleted_at IS NULL`
		args := []any{ftsQuery(query), workspaceID}
		sql, args = appendFilters(sql, args, folderPrefix, typ, status, author)
		sql += ` ORDER BY score ASC LIMIT ?`
		args = append(args, limit)
		err := s.db.WithContext(ctx).Raw(sql, args...).Scan(&hits).Error
		return hits, err
	}

	sql := `SELECT a.seq AS seq, a.file_id AS file_id, a.public_id AS public_id,
		f.path AS path, a.author AS author, a.type AS type, a.status AS status,
		ts_rank(to_tsvector('english', a.preview), q) AS score,
		ts_headline('english', a.preview, q, 'MaxWords=16') AS snippet
		FROM appends a
		JOIN files f ON f.id = a.file_id, websearch_to_tsquery('english', ?) q
		WHERE a.workspace_id = ? AND f.deleted_at IS NULL
		AND to_tsvector('english', a.preview) @@ q`
	args := []any{query, workspaceID}
	sql, args = appendFilters(sql, args, folderPrefix, typ, status, author)
	sql += ` ORDER BY score DESC LIMIT ?`
	args = append(args, limit)
	err := s.db.WithContext(ctx).Raw(sql, args...).Scan(&hits).Error
	return hits, err
}

func appendFilters(sql string, args []any, folderPrefix, typ, status, author string) (string, []any) {
	if folderPrefix != "" && folderPrefix != "/" {
		sql += ` AND f.path LIKE ? ESCAPE '\'`
		args = append(args, likePrefix(folderPrefix))
	}
	if typ != "" {
		sql += ` AND a.type = ?`
		args = append(args, typ)
	}
	if status != "" {
		sql += ` AND a.status = ?`
		args = append(args, status)
	}
	if author != "" {
		sql += ` AND a.author = ?`
		args = append(args, author)
	}
	return sql, args
}

// ftsQuery turns a raw user query into a safe FTS5 match expression by
// quoting each token. Bare user input reaches the FTS5 query parser
// otherwise, where operators like NEAR and - change meaning.
func ftsQuery(q string) string {
	fields := strings.Fields(q)
	if len(fields) == 0 {
		return `""`
	}
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		quoted = append(quoted, `"`+f+`"`)
	}
	return strings.Join(quoted, " ")
}

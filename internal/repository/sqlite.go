package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"stubot/internal/model"
)

// ArtifactRemover deletes stored audio artifacts.
type ArtifactRemover interface {
	Delete(filename string) (bool, error)
}

var _ ExchangeRepository = (*SQLiteRepository)(nil)

// SQLiteRepository is the ExchangeRepository backed by a SQLite database file.
type SQLiteRepository struct {
	db        *sql.DB
	artifacts ArtifactRemover
	logger    *slog.Logger

	// mu serializes inserts so created_at never goes backwards in insert order.
	mu          sync.Mutex
	lastCreated time.Time
	now         func() time.Time
}

// NewSQLiteRepository opens (and migrates) the conversation log at dbPath.
// Deleted exchanges have their audio removed through artifacts, which may be nil.
func NewSQLiteRepository(dbPath string, artifacts ArtifactRemover, logger *slog.Logger) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection serializes writers instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &SQLiteRepository{
		db:        db,
		artifacts: artifacts,
		logger:    logger.With("component", "repository"),
		now:       time.Now,
	}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return r, nil
}

func (r *SQLiteRepository) migrate() error {
	schema := `
	PRAGMA busy_timeout = 5000;

	CREATE TABLE IF NOT EXISTS chat_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		user_message TEXT NOT NULL,
		bot_response TEXT NOT NULL,
		user_audio_filename TEXT,
		bot_audio_filename TEXT,
		outcome TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chat_logs_created_at ON chat_logs(created_at DESC);
	`
	_, err := r.db.Exec(schema)
	return err
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Append stores ex, assigning its id (when unset) and CreatedAt.
func (r *SQLiteRepository) Append(ctx context.Context, ex *model.Exchange) (uuid.UUID, error) {
	if ex == nil {
		return uuid.Nil, &PersistenceError{Op: "append exchange", Err: errors.New("exchange is nil")}
	}
	if ex.UserMessage == "" {
		return uuid.Nil, &PersistenceError{Op: "append exchange", Err: errors.New("user message is empty")}
	}
	if ex.BotReply == "" {
		return uuid.Nil, &PersistenceError{Op: "append exchange", Err: errors.New("bot reply is empty")}
	}

	userID := ex.UserID
	if userID == "" {
		userID = model.AnonymousUser
	}

	query := `
		INSERT INTO chat_logs (
			id, user_id, user_message, bot_response,
			user_audio_filename, bot_audio_filename, outcome, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	r.mu.Lock()
	defer r.mu.Unlock()

	// Ids are minted under the lock so that UUIDv7 order matches insert order,
	// which Page relies on to break created_at ties.
	id := ex.ID
	if id == uuid.Nil {
		var err error
		if id, err = uuid.NewV7(); err != nil {
			return uuid.Nil, &PersistenceError{Op: "generate exchange id", Err: err}
		}
	}

	createdAt := r.now().UTC()
	if createdAt.Before(r.lastCreated) {
		createdAt = r.lastCreated
	}

	_, err := r.db.ExecContext(ctx, query,
		id.String(),
		userID,
		ex.UserMessage,
		ex.BotReply,
		nullString(ex.UserAudio),
		nullString(ex.BotAudio),
		string(ex.Outcome),
		createdAt.UnixNano(),
	)
	if err != nil {
		return uuid.Nil, &PersistenceError{Op: "append exchange", Err: err}
	}

	r.lastCreated = createdAt
	ex.ID = id
	ex.UserID = userID
	ex.CreatedAt = createdAt
	return id, nil
}

const selectColumns = `
	SELECT id, user_id, user_message, bot_response,
		user_audio_filename, bot_audio_filename, outcome, created_at
	FROM chat_logs
`

func (r *SQLiteRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exchange, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id.String())
	ex, err := scanExchange(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get exchange", Err: err}
	}
	return ex, nil
}

func (r *SQLiteRepository) Page(ctx context.Context, page, pageSize int) (*Page, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_logs`).Scan(&total); err != nil {
		return nil, &PersistenceError{Op: "count exchanges", Err: err}
	}

	p := NewPage(page, pageSize, total)
	if total == 0 {
		return p, nil
	}

	rows, err := r.db.QueryContext(ctx,
		selectColumns+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		p.PageSize, p.Offset(),
	)
	if err != nil {
		return nil, &PersistenceError{Op: "query exchanges", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		ex, err := scanExchange(rows)
		if err != nil {
			return nil, &PersistenceError{Op: "scan exchange", Err: err}
		}
		p.Items = append(p.Items, *ex)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "iterate exchanges", Err: err}
	}
	return p, nil
}

// Classify counts an exchange as unanswered when it was recorded with a
// fallback outcome or its reply is one of the fallback texts. Rows written
// before outcomes were stored are covered by the text match.
func (r *SQLiteRepository) Classify(ctx context.Context) (*Classification, error) {
	outcomes := make([]string, len(model.FallbackOutcomes))
	for i, o := range model.FallbackOutcomes {
		outcomes[i] = string(o)
	}

	query := fmt.Sprintf(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN outcome IN (%s) OR bot_response IN (%s) THEN 1 ELSE 0 END), 0)
		FROM chat_logs
	`, placeholders(len(outcomes)), placeholders(len(model.FallbackReplies)))

	args := make([]any, 0, len(outcomes)+len(model.FallbackReplies))
	for _, o := range outcomes {
		args = append(args, o)
	}
	for _, reply := range model.FallbackReplies {
		args = append(args, reply)
	}

	var c Classification
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&c.Total, &c.Unanswered); err != nil {
		return nil, &PersistenceError{Op: "classify exchanges", Err: err}
	}
	c.Answered = c.Total - c.Unanswered
	return &c, nil
}

// DeleteByID removes the exchange, then its audio artifacts. Artifact removal
// is best-effort; leftovers are reclaimed by the retention sweeper.
func (r *SQLiteRepository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	ex, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_logs WHERE id = ?`, id.String())
	if err != nil {
		return &PersistenceError{Op: "delete exchange", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &PersistenceError{Op: "delete exchange", Err: err}
	}
	if n == 0 {
		return ErrNotFound
	}

	if r.artifacts == nil {
		return nil
	}
	for _, filename := range ex.AudioFilenames() {
		if _, err := r.artifacts.Delete(filename); err != nil {
			r.logger.Warn("failed to delete audio artifact", "exchange_id", id, "filename", filename, "err", err)
		}
	}
	return nil
}

func (r *SQLiteRepository) ReferencedAudio(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_audio_filename FROM chat_logs WHERE user_audio_filename IS NOT NULL
		UNION
		SELECT bot_audio_filename FROM chat_logs WHERE bot_audio_filename IS NOT NULL
	`)
	if err != nil {
		return nil, &PersistenceError{Op: "query referenced audio", Err: err}
	}
	defer rows.Close()

	refs := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &PersistenceError{Op: "scan referenced audio", Err: err}
		}
		refs[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "iterate referenced audio", Err: err}
	}
	return refs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExchange(row rowScanner) (*model.Exchange, error) {
	var (
		ex        model.Exchange
		id        string
		outcome   string
		userAudio sql.NullString
		botAudio  sql.NullString
		createdAt int64
	)
	err := row.Scan(
		&id,
		&ex.UserID,
		&ex.UserMessage,
		&ex.BotReply,
		&userAudio,
		&botAudio,
		&outcome,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if ex.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse id %q: %w", id, err)
	}
	if userAudio.Valid {
		ex.UserAudio = &userAudio.String
	}
	if botAudio.Valid {
		ex.BotAudio = &botAudio.String
	}
	ex.Outcome = model.Outcome(outcome)
	ex.CreatedAt = time.Unix(0, createdAt).UTC()
	return &ex, nil
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

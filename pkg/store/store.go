package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	errs "github.com/thomasgazzoni/xdumper/pkg/errors"
	"github.com/thomasgazzoni/xdumper/pkg/twitter"
)

// WriteOutcome reports what an Upsert did
type WriteOutcome int

const (
	// Inserted means the post was not known before this write
	Inserted WriteOutcome = iota
	// AlreadyPresent means the post id was already stored; the write was a no-op
	AlreadyPresent
)

// timeLayout is the stored created_at format. Second resolution, UTC, so
// lexicographic order equals chronological order and equal-second posts
// fall back to the id tie-break.
const timeLayout = "2006-01-02T15:04:05Z"

// Store is the durable dedup store for posts, keyed by post id. Every
// upsert is its own atomic unit; concurrent upserts of the same id are
// serialized by SQLite so exactly one write wins.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite post store at path
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, errs.Wrap(errs.ErrorTypeStoreFailure, err, "failed to create store directory")
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeStoreFailure, err, "failed to open store")
	}

	// One connection keeps writers serialized without SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS timelines (
		key TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		type TEXT NOT NULL,
		first_scraped_at TEXT NOT NULL,
		last_scraped_at TEXT NOT NULL,
		newest_post_id TEXT,
		oldest_post_id TEXT
	);

	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		timeline_key TEXT NOT NULL,
		created_at TEXT NOT NULL,
		author_id TEXT NOT NULL,
		author_handle TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		in_reply_to_id TEXT,
		in_reply_to_author_id TEXT,
		is_retweet INTEGER NOT NULL DEFAULT 0,
		is_quote INTEGER NOT NULL DEFAULT 0,
		has_media INTEGER NOT NULL DEFAULT 0,
		is_self_thread INTEGER NOT NULL DEFAULT 0,
		text TEXT NOT NULL,
		raw BLOB NOT NULL,
		stored_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_posts_timeline_key ON posts(timeline_key);
	CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at);
	CREATE INDEX IF NOT EXISTS idx_posts_author_id ON posts(author_id);
	CREATE INDEX IF NOT EXISTS idx_posts_conversation_id ON posts(conversation_id);
	CREATE INDEX IF NOT EXISTS idx_posts_in_reply_to_id ON posts(in_reply_to_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return errs.Wrap(errs.ErrorTypeStoreFailure, err, "failed to migrate schema")
	}
	return nil
}

// Has checks whether a post id is already stored
func (s *Store) Has(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM posts WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return false, errs.Wrap(errs.ErrorTypeStoreFailure, err, "membership check failed")
	}
	return exists, nil
}

// Upsert stores a post idempotently. A re-insert with an already-known id
// is a no-op that reports AlreadyPresent; the stored record is never
// replaced.
func (s *Store) Upsert(ctx context.Context, post *twitter.Post, timelineKey string) (WriteOutcome, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO posts
			(id, timeline_key, created_at, author_id, author_handle, conversation_id,
			 in_reply_to_id, in_reply_to_author_id, is_retweet, is_quote, has_media,
			 is_self_thread, text, raw, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		post.ID,
		timelineKey,
		post.CreatedAt.UTC().Format(timeLayout),
		post.AuthorID,
		post.AuthorHandle,
		post.ConversationID,
		nullable(post.InReplyToID),
		nullable(post.InReplyToAuthorID),
		boolToInt(post.IsRetweet),
		boolToInt(post.IsQuote),
		boolToInt(post.HasMedia),
		boolToInt(post.IsSelfThread),
		post.Text,
		[]byte(post.Raw),
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return AlreadyPresent, errs.Wrap(errs.ErrorTypeStoreFailure, err, "upsert failed")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return AlreadyPresent, errs.Wrap(errs.ErrorTypeStoreFailure, err, "upsert outcome unknown")
	}
	if affected > 0 {
		return Inserted, nil
	}
	return AlreadyPresent, nil
}

// ExistingIDs returns the ids already stored for a target, without loading
// post bodies.
func (s *Store) ExistingIDs(ctx context.Context, target twitter.Target) (map[string]struct{}, error) {
	query := `SELECT id FROM posts WHERE timeline_key = ?`
	arg := target.Key()
	if target.Type == twitter.TargetConversation {
		query = `SELECT id FROM posts WHERE conversation_id = ?`
		arg = target.ConversationID
	}

	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeStoreFailure, err, "existing ids query failed")
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Wrap(errs.ErrorTypeStoreFailure, err, "existing ids scan failed")
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeStoreFailure, err, "existing ids iteration failed")
	}
	return ids, nil
}

// MarkSelfThread upgrades the is_self_thread flag on the given posts.
// The flag only ever goes from false to true; no other field mutates.
func (s *Store) MarkSelfThread(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE posts SET is_self_thread = 1 WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeStoreFailure, err, "self-thread flag update failed")
	}
	return nil
}

// Get returns a single stored post by id, or nil when unknown
func (s *Store) Get(ctx context.Context, id string) (*twitter.Post, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeStoreFailure, err, "get query failed")
	}
	defer rows.Close()

	posts, err := scanPosts(rows)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, nil
	}
	return &posts[0], nil
}

// ReadOptions controls Read ordering and filtering
type ReadOptions struct {
	// OldestFirst orders by created_at ascending; default is newest first.
	// Post id is the tie-break either way.
	OldestFirst bool
	// Limit caps the number of returned posts; 0 means no cap
	Limit int
	// ExcludeRetweets drops retweets from the result
	ExcludeRetweets bool
	// ConversationID restricts the result to a single conversation
	ConversationID string
	// SelfThreadOnly restricts the result to marked self-thread posts
	SelfThreadOnly bool
}

const postColumns = `id, timeline_key, created_at, author_id, author_handle, conversation_id,
	in_reply_to_id, in_reply_to_author_id, is_retweet, is_quote, has_media,
	is_self_thread, text, raw`

// Read returns stored posts for a target with ordering and filtering.
// It performs zero network calls.
func (s *Store) Read(ctx context.Context, target twitter.Target, opts ReadOptions) ([]twitter.Post, error) {
	var conds []string
	var args []interface{}

	if target.Type == twitter.TargetConversation {
		conds = append(conds, "conversation_id = ?")
		args = append(args, target.ConversationID)
	} else {
		conds = append(conds, "timeline_key = ?")
		args = append(args, target.Key())
	}

	if opts.ConversationID != "" {
		conds = append(conds, "conversation_id = ?")
		args = append(args, opts.ConversationID)
	}
	if opts.ExcludeRetweets {
		conds = append(conds, "is_retweet = 0")
	}
	if opts.SelfThreadOnly {
		conds = append(conds, "is_self_thread = 1")
	}

	order := "DESC"
	if opts.OldestFirst {
		order = "ASC"
	}

	query := `SELECT ` + postColumns + ` FROM posts WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY created_at ` + order + `, id ` + order
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeStoreFailure, err, "read query failed")
	}
	defer rows.Close()

	return scanPosts(rows)
}

// Conversation returns every stored post of a conversation, oldest first
func (s *Store) Conversation(ctx context.Context, conversationID string) ([]twitter.Post, error) {
	return s.Read(ctx, twitter.ConversationTarget(conversationID), ReadOptions{OldestFirst: true})
}

// Count returns the number of stored posts for a target
func (s *Store) Count(ctx context.Context, target twitter.Target) (int, error) {
	query := `SELECT COUNT(*) FROM posts WHERE timeline_key = ?`
	arg := target.Key()
	if target.Type == twitter.TargetConversation {
		query = `SELECT COUNT(*) FROM posts WHERE conversation_id = ?`
		arg = target.ConversationID
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, arg).Scan(&n); err != nil {
		return 0, errs.Wrap(errs.ErrorTypeStoreFailure, err, "count query failed")
	}
	return n, nil
}

// TimelineInfo describes the scrape history of a target
type TimelineInfo struct {
	Key            string
	URL            string
	Type           string
	FirstScrapedAt time.Time
	LastScrapedAt  time.Time
	NewestPostID   string
	OldestPostID   string
}

// TimelineInfo returns the scrape bookkeeping row for a target, or nil if
// the target has never been scraped.
func (s *Store) TimelineInfo(ctx context.Context, target twitter.Target) (*TimelineInfo, error) {
	var info TimelineInfo
	var first, last string
	var newest, oldest sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT key, url, type, first_scraped_at, last_scraped_at, newest_post_id, oldest_post_id
		FROM timelines WHERE key = ?
	`, target.Key()).Scan(&info.Key, &info.URL, &info.Type, &first, &last, &newest, &oldest)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeStoreFailure, err, "timeline info query failed")
	}

	info.FirstScrapedAt, _ = time.Parse(timeLayout, first)
	info.LastScrapedAt, _ = time.Parse(timeLayout, last)
	info.NewestPostID = newest.String
	info.OldestPostID = oldest.String
	return &info, nil
}

// UpdateTimelineInfo records a finished (or partial) scrape of a target.
// Newest and oldest post ids only move outward: newest grows, oldest
// shrinks, numerically.
func (s *Store) UpdateTimelineInfo(ctx context.Context, target twitter.Target, newestID, oldestID string) error {
	now := time.Now().UTC().Format(timeLayout)

	existing, err := s.TimelineInfo(ctx, target)
	if err != nil {
		return err
	}

	if existing == nil {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO timelines (key, url, type, first_scraped_at, last_scraped_at, newest_post_id, oldest_post_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, target.Key(), target.URL, string(target.Type), now, now, nullable(newestID), nullable(oldestID))
		if err != nil {
			return errs.Wrap(errs.ErrorTypeStoreFailure, err, "timeline insert failed")
		}
		return nil
	}

	newNewest := maxPostID(existing.NewestPostID, newestID)
	newOldest := minPostID(existing.OldestPostID, oldestID)

	_, err = s.db.ExecContext(ctx, `
		UPDATE timelines SET last_scraped_at = ?, newest_post_id = ?, oldest_post_id = ?
		WHERE key = ?
	`, now, nullable(newNewest), nullable(newOldest), target.Key())
	if err != nil {
		return errs.Wrap(errs.ErrorTypeStoreFailure, err, "timeline update failed")
	}
	return nil
}

func scanPosts(rows *sql.Rows) ([]twitter.Post, error) {
	var posts []twitter.Post
	for rows.Next() {
		var p twitter.Post
		var timelineKey, createdAt string
		var inReplyTo, inReplyToAuthor sql.NullString
		var isRetweet, isQuote, hasMedia, isSelfThread int
		var raw []byte

		err := rows.Scan(
			&p.ID, &timelineKey, &createdAt, &p.AuthorID, &p.AuthorHandle,
			&p.ConversationID, &inReplyTo, &inReplyToAuthor,
			&isRetweet, &isQuote, &hasMedia, &isSelfThread, &p.Text, &raw,
		)
		if err != nil {
			return nil, errs.Wrap(errs.ErrorTypeStoreFailure, err, "post scan failed")
		}

		p.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, errs.Wrap(errs.ErrorTypeStoreFailure, err, "stored created_at unparsable")
		}
		p.InReplyToID = inReplyTo.String
		p.InReplyToAuthorID = inReplyToAuthor.String
		p.IsRetweet = isRetweet != 0
		p.IsQuote = isQuote != 0
		p.HasMedia = hasMedia != 0
		p.IsSelfThread = isSelfThread != 0
		p.Raw = raw

		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeStoreFailure, err, "post iteration failed")
	}
	return posts, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// maxPostID compares snowflake ids numerically; empty loses
func maxPostID(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	if errA != nil || errB != nil {
		return a
	}
	if nb > na {
		return b
	}
	return a
}

func minPostID(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	if errA != nil || errB != nil {
		return a
	}
	if nb < na {
		return b
	}
	return a
}

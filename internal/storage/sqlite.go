package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"ingestor/internal/model"
	"ingestor/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

var itemColumns = []string{
	"i.id", "i.source_id", "i.source_type", "i.title", "i.url", "i.summary", "i.body",
	"i.published_at", "i.raw_metadata", "i.created_at", "i.updated_at",
}

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: writes are serialized and ":memory:" stays a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// UpsertSource creates the source or, when (name, type) already exists,
// updates its medium, ingest URL and meta. The stored ID, active flag and
// timestamps are written back into src.
func (s *SQLite) UpsertSource(ctx context.Context, src *model.Source) error {
	meta, err := encodeMetadata(src.Meta)
	if err != nil {
		return fmt.Errorf("encode source meta: %w", err)
	}
	now := time.Now().UTC().Format(timeLayout)

	var active int
	var created, updated string
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO sources (name, type, medium, ingest_url, active, frequency, meta, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?)
		 ON CONFLICT (name, type) DO UPDATE SET
		   medium = excluded.medium,
		   ingest_url = excluded.ingest_url,
		   meta = excluded.meta,
		   updated_at = excluded.updated_at
		 RETURNING id, active, created_at, updated_at`,
		src.Name, src.Type, string(src.Medium), nullString(src.IngestURL), nullString(src.Frequency), meta, now, now,
	).Scan(&src.ID, &active, &created, &updated)
	if err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}
	src.Active = active == 1
	src.CreatedAt, _ = time.Parse(timeLayout, created)
	src.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return nil
}

// GetSource returns a single source by its ID.
func (s *SQLite) GetSource(ctx context.Context, id int64) (*model.Source, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, medium, ingest_url, active, frequency, meta, created_at, updated_at
		 FROM sources WHERE id = ?`, id,
	)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return src, err
}

// ListActiveSources returns all active sources ordered by name.
func (s *SQLite) ListActiveSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, medium, ingest_url, active, frequency, meta, created_at, updated_at
		 FROM sources WHERE active = 1 ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sources []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

// SetSourceActive pauses or resumes a source.
func (s *SQLite) SetSourceActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sources SET active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), time.Now().UTC().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertItem inserts the item or, when (source_id, url) already exists,
// refreshes its title, summary, body, published_at and raw_metadata.
// The stored ID and creation time are written back into item, so on
// conflict item.ID names the existing row.
func (s *SQLite) UpsertItem(ctx context.Context, item *model.Item) error {
	meta, err := encodeMetadata(item.RawMetadata)
	if err != nil {
		return fmt.Errorf("encode raw metadata: %w", err)
	}
	now := time.Now().UTC().Format(timeLayout)

	var id, created, updated string
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO items (id, source_id, source_type, title, url, summary, body, published_at, raw_metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source_id, url) DO UPDATE SET
		   title = excluded.title,
		   summary = excluded.summary,
		   body = excluded.body,
		   published_at = excluded.published_at,
		   raw_metadata = excluded.raw_metadata,
		   updated_at = excluded.updated_at
		 RETURNING id, created_at, updated_at`,
		item.ID, item.SourceID, string(item.Medium), item.Title, item.URL,
		item.Summary, item.Body, item.PublishedAt.UTC().Format(timeLayout), meta, now, now,
	).Scan(&id, &created, &updated)
	if err != nil {
		return fmt.Errorf("upsert item: %w", err)
	}
	item.ID = id
	item.CreatedAt, _ = time.Parse(timeLayout, created)
	item.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return nil
}

// GetItem returns a single item by its ID.
func (s *SQLite) GetItem(ctx context.Context, id string) (*model.Item, error) {
	query, args, err := sq.Select(itemColumns...).From("items i").Where(sq.Eq{"i.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build item query: %w", err)
	}
	item, err := scanItem(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return item, err
}

// ListItems returns items matching f, newest first.
func (s *SQLite) ListItems(ctx context.Context, f ItemFilter) ([]model.Item, error) {
	q := sq.Select(itemColumns...).From("items i")
	if f.Topic != "" {
		q = q.Join("item_topics t ON t.item_id = i.id").Where(sq.Eq{"t.topic": f.Topic})
	}
	if f.SourceID != 0 {
		q = q.Where(sq.Eq{"i.source_id": f.SourceID})
	}
	if f.Medium != "" {
		q = q.Where(sq.Eq{"i.source_type": string(f.Medium)})
	}
	if !f.Since.IsZero() {
		q = q.Where(sq.GtOrEq{"i.published_at": f.Since.UTC().Format(timeLayout)})
	}
	q = q.OrderBy("i.published_at DESC", "i.id")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build items query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// AddItemTopic tags an item with a topic. Adding an existing pair is a no-op.
func (s *SQLite) AddItemTopic(ctx context.Context, itemID, topic string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO item_topics (item_id, topic, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (item_id, topic) DO NOTHING`,
		itemID, topic, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert item topic: %w", err)
	}
	return nil
}

// ListItemTopics returns the topics of an item in alphabetical order.
func (s *SQLite) ListItemTopics(ctx context.Context, itemID string) ([]model.ItemTopic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item_id, topic, created_at FROM item_topics WHERE item_id = ? ORDER BY topic`, itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("query item topics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var topics []model.ItemTopic
	for rows.Next() {
		var t model.ItemTopic
		var created string
		if err := rows.Scan(&t.ID, &t.ItemID, &t.Topic, &created); err != nil {
			return nil, fmt.Errorf("scan item topic: %w", err)
		}
		t.CreatedAt, _ = time.Parse(timeLayout, created)
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// SetItemLike records a user's score for an item, replacing any earlier score.
// Scores outside {-1, 0, 1} are rejected before touching the database.
func (s *SQLite) SetItemLike(ctx context.Context, userID, itemID string, score int) error {
	if err := model.ValidateScore(score); err != nil {
		return fmt.Errorf("set item like: %w", err)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO item_likes (user_id, item_id, score, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, item_id) DO UPDATE SET score = excluded.score`,
		userID, itemID, score, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert item like: %w", err)
	}
	return nil
}

// ListItemLikes returns all scores recorded for an item.
func (s *SQLite) ListItemLikes(ctx context.Context, itemID string) ([]model.ItemLike, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, item_id, score, created_at FROM item_likes WHERE item_id = ? ORDER BY user_id`, itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("query item likes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var likes []model.ItemLike
	for rows.Next() {
		var l model.ItemLike
		var created string
		if err := rows.Scan(&l.ID, &l.UserID, &l.ItemID, &l.Score, &created); err != nil {
			return nil, fmt.Errorf("scan item like: %w", err)
		}
		l.CreatedAt, _ = time.Parse(timeLayout, created)
		likes = append(likes, l)
	}
	return likes, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func encodeMetadata(m model.Metadata) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMetadata(raw string) (model.Metadata, error) {
	m := model.Metadata{}
	if raw == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSource(row scannable) (*model.Source, error) {
	var src model.Source
	var medium, meta, created, updated string
	var ingestURL, frequency sql.NullString
	var active int
	err := row.Scan(&src.ID, &src.Name, &src.Type, &medium, &ingestURL, &active, &frequency, &meta, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan source: %w", err)
	}
	src.Medium = model.Medium(medium)
	src.IngestURL = ingestURL.String
	src.Frequency = frequency.String
	src.Active = active == 1
	if src.Meta, err = decodeMetadata(meta); err != nil {
		return nil, fmt.Errorf("decode source meta: %w", err)
	}
	src.CreatedAt, _ = time.Parse(timeLayout, created)
	src.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &src, nil
}

func scanItem(row scannable) (*model.Item, error) {
	var item model.Item
	var medium, published, meta, created, updated string
	var summary, body sql.NullString
	err := row.Scan(&item.ID, &item.SourceID, &medium, &item.Title, &item.URL, &summary, &body,
		&published, &meta, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan item: %w", err)
	}
	item.Medium = model.Medium(medium)
	if summary.Valid {
		item.Summary = &summary.String
	}
	if body.Valid {
		item.Body = &body.String
	}
	if item.RawMetadata, err = decodeMetadata(meta); err != nil {
		return nil, fmt.Errorf("decode raw metadata: %w", err)
	}
	item.PublishedAt, _ = time.Parse(timeLayout, published)
	item.CreatedAt, _ = time.Parse(timeLayout, created)
	item.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &item, nil
}

// Package store provides SQLite persistence for fetched articles.
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/abelbrown/wikiscroll/internal/feed"
)

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Article is one stored stream item.
type Article struct {
	ID          string
	Category    string
	Subcategory string
	Title       string
	Extract     string
	Image       string
	URL         string
	Fetched     time.Time
	Read        bool
}

// FromItems converts stream items fetched for key into articles.
func FromItems(key feed.StreamKey, items []feed.Item, fetched time.Time) []Article {
	out := make([]Article, len(items))
	for i, it := range items {
		out[i] = Article{
			ID:          it.ID.String(),
			Category:    key.Category,
			Subcategory: key.Subcategory,
			Title:       it.Title,
			Extract:     it.Extract,
			Image:       it.Image,
			URL:         it.URL,
			Fetched:     fetched,
		}
	}
	return out
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for file-based databases.
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// Shared cache so every pooled connection sees the same database.
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		subcategory TEXT NOT NULL,
		title TEXT NOT NULL,
		extract TEXT,
		image TEXT,
		url TEXT,
		fetched_at DATETIME NOT NULL,
		read INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_articles_fetched ON articles(fetched_at DESC);
	CREATE INDEX IF NOT EXISTS idx_articles_category ON articles(category, subcategory);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveArticles stores articles in one transaction, returning the count of new
// rows. Articles already stored (by id) are left untouched.
func (s *Store) SaveArticles(articles []Article) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(articles) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO articles (
			id, category, subcategory, title, extract, image, url, fetched_at, read
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	newCount := 0
	for _, a := range articles {
		result, err := stmt.Exec(
			a.ID,
			a.Category,
			a.Subcategory,
			a.Title,
			a.Extract,
			a.Image,
			a.URL,
			a.Fetched,
			boolToInt(a.Read),
		)
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", a.ID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		if affected > 0 {
			newCount++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return newCount, nil
}

const selectArticles = `
	SELECT id, category, subcategory, title, extract, image, url, fetched_at, read
	FROM articles
`

// GetArticles returns the most recently fetched articles.
// If includeRead is false, only unread articles are returned.
func (s *Store) GetArticles(limit int, includeRead bool) ([]Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectArticles
	if !includeRead {
		query += " WHERE read = 0"
	}
	query += " ORDER BY fetched_at DESC, rowid ASC LIMIT ?"
	return s.queryArticles(query, limit)
}

// GetArticlesFor returns stored articles for one category, most recent first.
// An empty subcategory matches every subcategory.
func (s *Store) GetArticlesFor(category, subcategory string, limit int) ([]Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if subcategory == "" {
		return s.queryArticles(selectArticles+" WHERE category = ? ORDER BY fetched_at DESC, rowid ASC LIMIT ?",
			category, limit)
	}
	return s.queryArticles(selectArticles+" WHERE category = ? AND subcategory = ? ORDER BY fetched_at DESC, rowid ASC LIMIT ?",
		category, subcategory, limit)
}

// MarkRead marks an article as read.
func (s *Store) MarkRead(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("UPDATE articles SET read = 1 WHERE id = ?", id)
	return err
}

// CategoryCount is the number of stored articles in one category.
type CategoryCount struct {
	Category string
	Count    int
}

// Stats summarizes the store.
type Stats struct {
	Total      int
	Unread     int
	Categories []CategoryCount // largest first
	Newest     time.Time
}

// Stats returns article counts.
func (s *Store) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	var newest sql.NullString
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN read = 0 THEN 1 ELSE 0 END), 0), MAX(fetched_at)
		FROM articles
	`).Scan(&st.Total, &st.Unread, &newest)
	if err != nil {
		return Stats{}, fmt.Errorf("count articles: %w", err)
	}
	if newest.Valid {
		st.Newest = parseTime(newest.String)
	}

	rows, err := s.db.Query(`
		SELECT category, COUNT(*) AS n FROM articles
		GROUP BY category ORDER BY n DESC, category ASC
	`)
	if err != nil {
		return Stats{}, fmt.Errorf("count categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cc CategoryCount
		if err := rows.Scan(&cc.Category, &cc.Count); err != nil {
			return Stats{}, err
		}
		st.Categories = append(st.Categories, cc)
	}
	return st, rows.Err()
}

// queryArticles executes a query and scans results into Articles.
// Caller must hold s.mu (read lock is sufficient).
func (s *Store) queryArticles(query string, args ...any) ([]Article, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		var a Article
		var extract, image, url sql.NullString
		var readInt int
		if err := rows.Scan(
			&a.ID,
			&a.Category,
			&a.Subcategory,
			&a.Title,
			&extract,
			&image,
			&url,
			&a.Fetched,
			&readInt,
		); err != nil {
			return nil, err
		}
		a.Extract = extract.String
		a.Image = image.String
		a.URL = url.String
		a.Read = readInt != 0
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return articles, nil
}

// parseTime reads an aggregate timestamp, which the driver hands back as text.
func parseTime(s string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/knolrecall/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

const secondsPerDay = 24 * 60 * 60

// dayNumber stores a calendar date as days since 1970-01-01.
func dayNumber(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / secondsPerDay
}

func fromDayNumber(n int64) time.Time {
	return time.Unix(n*secondsPerDay, 0).UTC()
}

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
// Foreign keys are switched on so deleting a deck or card removes its review states.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

func dsn(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// InsertDeck registers a new deck and returns its ID.
func (db *DB) InsertDeck(ctx context.Context, path string, deckType domain.DeckType) (int64, error) {
	existing, err := db.FindDeckByPath(ctx, path)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, fmt.Errorf("deck %s: %w", path, domain.ErrDeckExists)
	}

	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO decks (path, type)
		VALUES (?, ?)
	`, path, string(deckType))
	if err != nil {
		return 0, fmt.Errorf("failed to insert deck %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for deck %s: %w", path, err)
	}
	return id, nil
}

// FindDeckByPath retrieves a deck by its path. It returns nil when no deck matches.
func (db *DB) FindDeckByPath(ctx context.Context, path string) (*domain.Deck, error) {
	row := db.conn.QueryRowContext(ctx, deckSelect+` WHERE d.path = ? GROUP BY d.id`, path)
	d, err := scanDeck(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find deck by path %s: %w", path, err)
	}
	return d, nil
}

// FindDeck retrieves a deck by ID. It returns nil when no deck matches.
func (db *DB) FindDeck(ctx context.Context, id int64) (*domain.Deck, error) {
	row := db.conn.QueryRowContext(ctx, deckSelect+` WHERE d.id = ? GROUP BY d.id`, id)
	d, err := scanDeck(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find deck %d: %w", id, err)
	}
	return d, nil
}

// ListDecks retrieves all decks with their card counts.
func (db *DB) ListDecks(ctx context.Context) ([]domain.Deck, error) {
	rows, err := db.conn.QueryContext(ctx, deckSelect+` GROUP BY d.id ORDER BY d.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	defer rows.Close()

	var decks []domain.Deck
	for rows.Next() {
		d, err := scanDeck(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}
		decks = append(decks, *d)
	}
	return decks, rows.Err()
}

// TouchDeck records that a deck has just been scanned.
func (db *DB) TouchDeck(ctx context.Context, id int64, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE decks
		SET last_scanned = ?
		WHERE id = ?
	`, at.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for deck %d: %w", id, err)
	}
	return nil
}

// DeleteDeck removes a deck. Its cards and their review states go with it.
func (db *DB) DeleteDeck(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM decks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete deck %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deck %d: %w", id, domain.ErrDeckNotFound)
	}
	return nil
}

const deckSelect = `
	SELECT d.id, d.path, d.type, d.last_scanned, COUNT(c.hash)
	FROM decks d LEFT JOIN cards c ON c.deck_id = d.id`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDeck(s scanner) (*domain.Deck, error) {
	var (
		d           domain.Deck
		deckType    string
		lastScanned sql.NullString
	)
	if err := s.Scan(&d.ID, &d.Path, &deckType, &lastScanned, &d.CardCount); err != nil {
		return nil, err
	}
	d.Type = domain.DeckType(deckType)
	if lastScanned.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastScanned.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last scanned %q: %w", lastScanned.String, err)
		}
		d.LastScanned = &t
	}
	return &d, nil
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conorfennell/knolrecall/internal/domain"
)

// InsertCard adds a card to a deck. A card whose hash is already stored is
// left where it is and false is returned.
func (db *DB) InsertCard(ctx context.Context, card domain.Card) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO cards (hash, question, answer, context, deck_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`,
		card.Hash,
		card.Question,
		card.Answer,
		card.Context,
		card.DeckID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert card %s: %w", card.Hash, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert card %s: %w", card.Hash, err)
	}
	return n == 1, nil
}

// FindCard retrieves a card by its hash. It returns nil when no card matches.
func (db *DB) FindCard(ctx context.Context, hash string) (*domain.Card, error) {
	var c domain.Card
	err := db.conn.QueryRowContext(ctx, `
		SELECT hash, question, answer, context, deck_id
		FROM cards WHERE hash = ?
	`, hash).Scan(&c.Hash, &c.Question, &c.Answer, &c.Context, &c.DeckID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find card %s: %w", hash, err)
	}
	return &c, nil
}

// Cards lists every card, or only the cards of one deck when deckID is set.
func (db *DB) Cards(ctx context.Context, deckID *int64) ([]domain.Card, error) {
	return listCards(ctx, db.conn, deckID)
}

func listCards(ctx context.Context, q queryer, deckID *int64) ([]domain.Card, error) {
	query := `SELECT hash, question, answer, context, deck_id FROM cards`
	var args []any
	if deckID != nil {
		query += ` WHERE deck_id = ?`
		args = append(args, *deckID)
	}
	query += ` ORDER BY hash`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		var c domain.Card
		if err := rows.Scan(&c.Hash, &c.Question, &c.Answer, &c.Context, &c.DeckID); err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// CardHashesByDeck retrieves the hashes of every card in a deck.
func (db *DB) CardHashesByDeck(ctx context.Context, deckID int64) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT hash FROM cards WHERE deck_id = ?`, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for deck %d: %w", deckID, err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan card hash for deck %d: %w", deckID, err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// DeleteCard removes a card and, through the foreign key, its review states.
func (db *DB) DeleteCard(ctx context.Context, hash string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM cards WHERE hash = ?`, hash); err != nil {
		return fmt.Errorf("failed to delete card with hash %s: %w", hash, err)
	}
	return nil
}

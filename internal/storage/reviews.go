package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conorfennell/knolrecall/internal/domain"
)

const reviewStateColumns = `card_hash, learner_id, ease_factor, interval_days, repetitions,
	next_review_date, last_quality, last_review_date, version`

// FindReviewState retrieves the state of one card for one learner.
// It returns nil when the card has never been reviewed by the learner.
func (db *DB) FindReviewState(ctx context.Context, cardID, learnerID string) (*domain.ReviewState, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+reviewStateColumns+`
		FROM review_states WHERE card_hash = ? AND learner_id = ?
	`, cardID, learnerID)
	st, err := scanReviewState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find review state for card %s, learner %s: %w", cardID, learnerID, err)
	}
	return st, nil
}

// ReviewStates lists every review state of a learner.
func (db *DB) ReviewStates(ctx context.Context, learnerID string) ([]domain.ReviewState, error) {
	return listReviewStates(ctx, db.conn, learnerID)
}

// DueSnapshot reads the cards (of one deck when deckID is set) and the
// learner's review states inside a single read-only transaction.
func (db *DB) DueSnapshot(ctx context.Context, learnerID string, deckID *int64) ([]domain.Card, []domain.ReviewState, error) {
	tx, err := db.conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	cards, err := listCards(ctx, tx, deckID)
	if err != nil {
		return nil, nil, err
	}
	states, err := listReviewStates(ctx, tx, learnerID)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to close snapshot transaction: %w", err)
	}
	return cards, states, nil
}

func listReviewStates(ctx context.Context, q queryer, learnerID string) ([]domain.ReviewState, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+reviewStateColumns+`
		FROM review_states WHERE learner_id = ?
		ORDER BY next_review_date, card_hash
	`, learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list review states for learner %s: %w", learnerID, err)
	}
	defer rows.Close()

	var states []domain.ReviewState
	for rows.Next() {
		st, err := scanReviewState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review state row: %w", err)
		}
		states = append(states, *st)
	}
	return states, rows.Err()
}

// RecordReview persists the state produced by a review together with its log entry.
//
// The write is a compare-and-swap on state.Version: zero inserts a new row,
// anything else updates the row only if it still carries that version. When
// another writer got there first, domain.ErrStaleReviewState is returned and
// nothing is written. On success state.Version holds the stored version.
func (db *DB) RecordReview(ctx context.Context, state *domain.ReviewState, entry domain.ReviewLog) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin review transaction: %w", err)
	}
	defer tx.Rollback()

	var lastQuality sql.NullInt64
	if state.LastQuality != nil {
		lastQuality = sql.NullInt64{Int64: int64(*state.LastQuality), Valid: true}
	}
	var lastReview sql.NullInt64
	if state.LastReviewDate != nil {
		lastReview = sql.NullInt64{Int64: dayNumber(*state.LastReviewDate), Valid: true}
	}
	next := dayNumber(state.NextReviewDate)

	var res sql.Result
	if state.Version == 0 {
		res, err = tx.ExecContext(ctx, `
			INSERT INTO review_states (`+reviewStateColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
			ON CONFLICT(card_hash, learner_id) DO NOTHING
		`, state.CardID, state.LearnerID, state.EaseFactor, state.IntervalDays, state.Repetitions,
			next, lastQuality, lastReview)
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE review_states
			SET ease_factor = ?, interval_days = ?, repetitions = ?, next_review_date = ?,
			    last_quality = ?, last_review_date = ?, version = version + 1
			WHERE card_hash = ? AND learner_id = ? AND version = ?
		`, state.EaseFactor, state.IntervalDays, state.Repetitions, next, lastQuality, lastReview,
			state.CardID, state.LearnerID, state.Version)
	}
	if err != nil {
		return fmt.Errorf("failed to save review state for card %s: %w", state.CardID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save review state for card %s: %w", state.CardID, err)
	}
	if n == 0 {
		return fmt.Errorf("card %s, learner %s: %w", state.CardID, state.LearnerID, domain.ErrStaleReviewState)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO review_logs (card_hash, learner_id, quality, reviewed_on, interval_days, ease_factor)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.CardID, entry.LearnerID, entry.Quality, dayNumber(entry.ReviewedOn),
		entry.IntervalDays, entry.EaseFactor)
	if err != nil {
		return fmt.Errorf("failed to insert review log for card %s: %w", entry.CardID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit review for card %s: %w", state.CardID, err)
	}
	state.Version++
	return nil
}

// ReviewLogs returns the review history of one card for one learner, oldest first.
func (db *DB) ReviewLogs(ctx context.Context, cardID, learnerID string) ([]domain.ReviewLog, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT card_hash, learner_id, quality, reviewed_on, interval_days, ease_factor
		FROM review_logs WHERE card_hash = ? AND learner_id = ?
		ORDER BY id
	`, cardID, learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list review logs for card %s: %w", cardID, err)
	}
	defer rows.Close()

	var logs []domain.ReviewLog
	for rows.Next() {
		var (
			l          domain.ReviewLog
			reviewedOn int64
		)
		if err := rows.Scan(&l.CardID, &l.LearnerID, &l.Quality, &reviewedOn, &l.IntervalDays, &l.EaseFactor); err != nil {
			return nil, fmt.Errorf("failed to scan review log row: %w", err)
		}
		l.ReviewedOn = fromDayNumber(reviewedOn)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func scanReviewState(s scanner) (*domain.ReviewState, error) {
	var (
		st          domain.ReviewState
		next        int64
		lastQuality sql.NullInt64
		lastReview  sql.NullInt64
	)
	if err := s.Scan(&st.CardID, &st.LearnerID, &st.EaseFactor, &st.IntervalDays, &st.Repetitions,
		&next, &lastQuality, &lastReview, &st.Version); err != nil {
		return nil, err
	}

	st.NextReviewDate = fromDayNumber(next)
	if lastQuality.Valid {
		q := int(lastQuality.Int64)
		st.LastQuality = &q
	}
	if lastReview.Valid {
		t := fromDayNumber(lastReview.Int64)
		st.LastReviewDate = &t
	}
	return &st, nil
}

package storage

const schema = `
-- The 'decks' table tracks where cards come from: a local directory or a git repository.
CREATE TABLE IF NOT EXISTS decks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned TEXT
);

-- The 'cards' table stores each flashcard, keyed by the hash of its normalized content.
CREATE TABLE IF NOT EXISTS cards (
    hash TEXT PRIMARY KEY,
    question TEXT NOT NULL,
    answer TEXT NOT NULL DEFAULT '',
    context TEXT NOT NULL DEFAULT '',
    deck_id INTEGER NOT NULL,

    FOREIGN KEY(deck_id) REFERENCES decks(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_cards_deck ON cards(deck_id);

-- One scheduling state per (card, learner). Dates are day numbers counted from 1970-01-01.
CREATE TABLE IF NOT EXISTS review_states (
    card_hash TEXT NOT NULL,
    learner_id TEXT NOT NULL,
    ease_factor REAL NOT NULL CHECK (ease_factor >= 1.3),
    interval_days INTEGER NOT NULL CHECK (interval_days >= 1),
    repetitions INTEGER NOT NULL CHECK (repetitions >= 0),
    next_review_date INTEGER NOT NULL,
    last_quality INTEGER CHECK (last_quality BETWEEN 0 AND 5),
    last_review_date INTEGER,
    version INTEGER NOT NULL DEFAULT 1,

    PRIMARY KEY (card_hash, learner_id),
    FOREIGN KEY(card_hash) REFERENCES cards(hash) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_review_states_due ON review_states(learner_id, next_review_date);

-- Append-only history of review events.
CREATE TABLE IF NOT EXISTS review_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    card_hash TEXT NOT NULL,
    learner_id TEXT NOT NULL,
    quality INTEGER NOT NULL,
    reviewed_on INTEGER NOT NULL,
    interval_days INTEGER NOT NULL,
    ease_factor REAL NOT NULL,

    FOREIGN KEY(card_hash) REFERENCES cards(hash) ON DELETE CASCADE
);
`

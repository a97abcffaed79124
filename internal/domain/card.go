package domain

import "time"

// Card represents a single question-answer-context entry.
// Hash is the content hash of the normalized card and serves as its id.
type Card struct {
	Hash     string
	Question string
	Answer   string
	Context  string
	DeckID   int64
}

// DeckType tells the sync process where a deck's markdown files come from.
type DeckType string

const (
	DeckLocal DeckType = "local"
	DeckGit   DeckType = "git"
)

// Deck is a source of cards: a local directory or a git repository.
type Deck struct {
	ID          int64
	Path        string
	Type        DeckType
	LastScanned *time.Time
	CardCount   int
}

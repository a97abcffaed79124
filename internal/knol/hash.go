// Package knol derives stable card ids from card content.
package knol

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/conorfennell/knolrecall/internal/domain"
)

// Normalize joins the card's question, answer and context after lowercasing,
// unifying line endings and trimming every line. Cosmetic edits to a note
// therefore keep the card's id, and its review history with it.
func Normalize(card domain.Card) string {
	parts := []string{card.Question, card.Answer, card.Context}
	for i, p := range parts {
		p = strings.ReplaceAll(strings.ToLower(p), "\r\n", "\n")
		lines := strings.Split(p, "\n")
		for j, l := range lines {
			lines[j] = strings.TrimSpace(l)
		}
		parts[i] = strings.TrimSpace(strings.Join(lines, "\n"))
	}
	return strings.Join(parts, "\n")
}

// Hash returns the SHA-256 of the normalized card as a hex string.
func Hash(card domain.Card) string {
	sum := sha256.Sum256([]byte(Normalize(card)))
	return hex.EncodeToString(sum[:])
}

// Assign sets the hash and deck of every card in place.
func Assign(cards []domain.Card, deckID int64) {
	for i := range cards {
		cards[i].Hash = Hash(cards[i])
		cards[i].DeckID = deckID
	}
}

// Package parser extracts flashcards from markdown notes.
//
// A card starts at a "Q:" line and may carry "A:" and "C:" (context) blocks.
// Blocks run until the next prefix line; a "---" line ends the card.
package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/knolrecall/internal/domain"
)

type field int

const (
	none field = iota
	question
	answer
	context
)

var prefixes = []struct {
	prefix string
	field  field
}{
	{"Q:", question},
	{"A:", answer},
	{"C:", context},
}

const separator = "---"

// ParseFile reads a file from the given path and extracts all cards.
func ParseFile(path string) ([]domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

type builder struct {
	cards   []domain.Card
	current domain.Card
	field   field
	block   []string
}

// flushBlock stores the lines collected so far in the field being read.
func (b *builder) flushBlock() {
	if b.field == none {
		return
	}
	content := strings.TrimSpace(strings.Join(b.block, "\n"))
	switch b.field {
	case question:
		b.current.Question = content
	case answer:
		b.current.Answer = content
	case context:
		b.current.Context = content
	}
	b.block = nil
}

func (b *builder) finishCard() {
	b.flushBlock()
	if b.current.Question != "" {
		b.cards = append(b.cards, b.current)
	}
	b.current = domain.Card{}
	b.field = none
}

func (b *builder) start(f field, rest string) {
	if f == question && b.field != none {
		b.finishCard()
	} else {
		b.flushBlock()
	}
	b.field = f
	b.block = []string{strings.TrimPrefix(rest, " ")}
}

// Parse reads from an io.Reader and extracts all cards.
func Parse(r io.Reader) ([]domain.Card, error) {
	scanner := bufio.NewScanner(r)
	var b builder

lines:
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")

		if line == separator {
			b.finishCard()
			continue
		}
		for _, p := range prefixes {
			if rest, ok := strings.CutPrefix(line, p.prefix); ok {
				b.start(p.field, rest)
				continue lines
			}
		}
		if b.field != none {
			b.block = append(b.block, line)
		}
	}
	b.finishCard()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return b.cards, nil
}

package vocab

import (
	"fmt"
	"strings"

	sentencepiece "github.com/eliben/go-sentencepiece"
)

// Tokenizer splits text into subword tokens. Implementations are deterministic and
// safe for concurrent use.
type Tokenizer interface {
	Tokenize(text string) []string
}

// SentencePieceTokenizer uses a pretrained SentencePiece model.
type SentencePieceTokenizer struct {
	proc *sentencepiece.Processor
}

// NewSentencePieceTokenizer loads a SentencePiece model file.
func NewSentencePieceTokenizer(modelPath string) (*SentencePieceTokenizer, error) {
	proc, err := sentencepiece.NewProcessorFromPath(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load sentencepiece model: %w", err)
	}
	return &SentencePieceTokenizer{proc: proc}, nil
}

// Tokenize returns the subword pieces of text.
func (t *SentencePieceTokenizer) Tokenize(text string) []string {
	tokens := t.proc.Encode(text)
	pieces := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		pieces = append(pieces, tok.Text)
	}
	return pieces
}

// GreedyTokenizer splits each whitespace word, prefixed with the word boundary marker,
// into the longest vocabulary pieces from left to right. Runes with no matching piece
// become single-rune tokens, which the vectorizer drops as unknown.
type GreedyTokenizer struct {
	vocab   *Vocabulary
	maxRune int
}

// NewGreedyTokenizer creates a tokenizer over vocab.
func NewGreedyTokenizer(vocab *Vocabulary) *GreedyTokenizer {
	maxRune := 1
	for _, tok := range vocab.tokens {
		if n := len([]rune(tok)); n > maxRune {
			maxRune = n
		}
	}
	return &GreedyTokenizer{vocab: vocab, maxRune: maxRune}
}

// Tokenize returns the subword pieces of text.
func (t *GreedyTokenizer) Tokenize(text string) []string {
	var pieces []string
	for _, word := range strings.Fields(text) {
		runes := []rune(WordBoundary + word)
		for i := 0; i < len(runes); {
			end := i + t.maxRune
			if end > len(runes) {
				end = len(runes)
			}
			matched := false
			for j := end; j > i; j-- {
				piece := string(runes[i:j])
				if _, ok := t.vocab.ids[piece]; ok {
					pieces = append(pieces, piece)
					i = j
					matched = true
					break
				}
			}
			if !matched {
				pieces = append(pieces, string(runes[i]))
				i++
			}
		}
	}
	return pieces
}

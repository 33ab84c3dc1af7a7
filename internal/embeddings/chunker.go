package embeddings

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/todmy/docguard/pkg/models"
)

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)

type piece struct {
	text string
	// sep joins this piece to the previous one when both land in a chunk
	sep string
}

// Chunk splits text into pieces that each fit maxTokens.
// Text that fits is returned whole. Otherwise it is split by paragraph,
// over-ceiling paragraphs by sentence, and the pieces are packed greedily.
// A sentence is only cut when it alone exceeds the ceiling.
func Chunk(text string, maxTokens int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxTokens <= 0 || models.EstimateTokens(text) <= maxTokens {
		return []string{text}
	}

	var pieces []piece
	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if models.EstimateTokens(para) <= maxTokens {
			pieces = append(pieces, piece{text: para, sep: "\n\n"})
			continue
		}
		for i, sentence := range splitSentences(para) {
			sep := " "
			if i == 0 {
				sep = "\n\n"
			}
			if models.EstimateTokens(sentence) <= maxTokens {
				pieces = append(pieces, piece{text: sentence, sep: sep})
				continue
			}
			for j, part := range splitHard(sentence, maxTokens) {
				if j > 0 {
					sep = " "
				}
				pieces = append(pieces, piece{text: part, sep: sep})
			}
		}
	}

	return pack(pieces, maxTokens)
}

func pack(pieces []piece, maxTokens int) []string {
	var chunks []string
	var current strings.Builder
	for _, p := range pieces {
		if current.Len() == 0 {
			current.WriteString(p.text)
			continue
		}
		if models.EstimateTokens(current.String()+p.sep+p.text) <= maxTokens {
			current.WriteString(p.sep)
			current.WriteString(p.text)
			continue
		}
		chunks = append(chunks, current.String())
		current.Reset()
		current.WriteString(p.text)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// splitSentences cuts after '.', '!' or '?' followed by whitespace
func splitSentences(text string) []string {
	var out []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes)-1; i++ {
		if (runes[i] == '.' || runes[i] == '!' || runes[i] == '?') && unicode.IsSpace(runes[i+1]) {
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// splitHard cuts an over-ceiling sentence on word boundaries, or mid-word
// when a single word is longer than the ceiling
func splitHard(text string, maxTokens int) []string {
	maxChars := int(float64(maxTokens) / models.TokensPerChar)
	if maxChars < 1 {
		maxChars = 1
	}

	var out []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			out = append(out, current.String())
			current.Reset()
		}
	}
	for _, word := range strings.Fields(text) {
		for len(word) > maxChars {
			flush()
			head := models.TruncateUTF8(word, maxChars)
			if head == "" {
				_, size := utf8.DecodeRuneInString(word)
				head = word[:size]
			}
			out = append(out, head)
			word = word[len(head):]
		}
		if word == "" {
			continue
		}
		switch {
		case current.Len() == 0:
			current.WriteString(word)
		case current.Len()+1+len(word) <= maxChars:
			current.WriteByte(' ')
			current.WriteString(word)
		default:
			flush()
			current.WriteString(word)
		}
	}
	flush()
	return out
}

package embeddings

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/todmy/docguard/pkg/models"
)

func TestChunk_FitsWhole(t *testing.T) {
	chunks := Chunk("  short text  ", 100)
	assert.Equal(t, []string{"short text"}, chunks)
}

func TestChunk_Empty(t *testing.T) {
	assert.Empty(t, Chunk(" \n\n ", 100))
}

func TestChunk_SplitsByParagraph(t *testing.T) {
	a := strings.Repeat("a", 40)
	b := strings.Repeat("b", 40)

	chunks := Chunk(a+"\n\n"+b, 12)
	assert.Equal(t, []string{a, b}, chunks)
}

func TestChunk_PacksParagraphsGreedily(t *testing.T) {
	text := "one.\n\ntwo.\n\n" + strings.Repeat("c", 60)

	chunks := Chunk(text, 16)
	assert.Equal(t, []string{"one.\n\ntwo.", strings.Repeat("c", 60)}, chunks)
}

func TestChunk_SplitsLongParagraphBySentence(t *testing.T) {
	text := "Alpha beta gamma. Delta epsilon zeta. Eta theta iota."

	chunks := Chunk(text, 10)
	assert.Equal(t, []string{"Alpha beta gamma. Delta epsilon zeta.", "Eta theta iota."}, chunks)
}

func TestChunk_CutsOverCeilingSentence(t *testing.T) {
	chunks := Chunk("abcdefghij klm", 2)
	assert.Equal(t, []string{"abcdefgh", "ij klm"}, chunks)
}

func TestChunk_CutsMultiByteWordOnRuneBoundaries(t *testing.T) {
	word := strings.Repeat("日", 20)

	chunks := Chunk(word, 2)
	assert.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk), "chunk %q is not valid UTF-8", chunk)
		assert.LessOrEqual(t, models.EstimateTokens(chunk), 2)
	}
	assert.Equal(t, word, strings.Join(chunks, ""))
}

func TestChunk_EveryChunkFitsCeiling(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 30; i++ {
		sb.WriteString("The service enforces a limit on requests. ")
		if i%4 == 3 {
			sb.WriteString("\n\n")
		}
	}

	for _, max := range []int{8, 20, 50} {
		for _, chunk := range Chunk(sb.String(), max) {
			assert.LessOrEqual(t, models.EstimateTokens(chunk), max)
			assert.NotEmpty(t, strings.TrimSpace(chunk))
		}
	}
}

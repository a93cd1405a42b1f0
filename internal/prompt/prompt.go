// Package prompt generates synthetic chat prompts of a target length, used
// to populate RunConfig.Prompts when the caller asks for generated load
// instead of supplying its own prompt set. The seed fixes the stream of
// random words; each prompt also starts with the wall-clock time at which
// it was generated, so two calls never return byte-identical text.
package prompt

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// DefaultSeed is the seed used when the caller does not supply one.
const DefaultSeed int64 = 42

const refrain = ". Repeat this text at least 10 times. Number the repetitions."

const (
	minWordLen = 1
	maxWordLen = 20
)

const alphabet = "abcdefghijklmnopqrstuvwxyz"

// Generator produces prompts of a target length from a seeded source of
// randomness. It is not safe for concurrent use; construct one Generator
// per goroutine, or guard it with a mutex.
type Generator struct {
	rng *rand.Rand
}

// New constructs a Generator seeded with seed.
func New(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Generate produces the i-th prompt of a batch of n, targeting length
// targetLen characters: a timestamp, then random lowercase words of
// length 1..20 appended (space-delimited) until the target length is
// reached, then the fixed refrain appended; the index prefix "i " is
// prepended and the whole result truncated to targetLen.
func (g *Generator) Generate(index int, targetLen int) string {
	var b strings.Builder
	b.WriteString(time.Now().Format(time.RFC3339Nano))

	for b.Len() < targetLen {
		b.WriteByte(' ')
		b.WriteString(g.randomWord())
	}
	b.WriteString(refrain)

	result := fmt.Sprintf("%d %s", index, b.String())
	if len(result) > targetLen {
		result = result[:targetLen]
	}
	return result
}

// GenerateBatch produces n prompts, each independently generated via
// Generate, sharing this Generator's random stream.
func (g *Generator) GenerateBatch(n int, targetLen int) []string {
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = g.Generate(i, targetLen)
	}
	return out
}

func (g *Generator) randomWord() string {
	n := minWordLen + g.rng.Intn(maxWordLen-minWordLen+1)
	word := make([]byte, n)
	for i := range word {
		word[i] = alphabet[g.rng.Intn(len(alphabet))]
	}
	return string(word)
}

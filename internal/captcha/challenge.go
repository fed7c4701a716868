package captcha

import (
	"math/rand/v2"
	"strings"
)

const (
	// Alphabet lists the characters a challenge may contain. Letters I and O
	// and digits 0 and 1 are left out because they read alike on a noisy canvas.
	Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	// ChallengeLength is the number of characters in every challenge.
	ChallengeLength = 6
)

// GenerateChallenge draws ChallengeLength characters from Alphabet, each
// independently and with replacement.
func GenerateChallenge(source *rand.Rand) string {
	var builder strings.Builder
	builder.Grow(ChallengeLength)
	for range ChallengeLength {
		builder.WriteByte(Alphabet[source.IntN(len(Alphabet))])
	}
	return builder.String()
}

// IsValidChallenge reports whether value has the shape GenerateChallenge produces.
func IsValidChallenge(value string) bool {
	if len(value) != ChallengeLength {
		return false
	}
	for index := 0; index < len(value); index++ {
		if !strings.ContainsRune(Alphabet, rune(value[index])) {
			return false
		}
	}
	return true
}

func newRandomSource() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

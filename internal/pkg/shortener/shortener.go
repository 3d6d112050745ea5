package shortener

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Base62 alphabet (0-9, a-z, A-Z).
const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Guest-facing references avoid characters that are easy to misread.
const referenceAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// GenerateSecureSlug creates a cryptographically secure random Base62 slug.
func GenerateSecureSlug(length int) (string, error) {
	return randomFrom(alphabet, length)
}

// GenerateReference returns a booking reference like "TF-7KQ2MX".
func GenerateReference(prefix string, length int) (string, error) {
	body, err := randomFrom(referenceAlphabet, length)
	if err != nil {
		return "", err
	}
	if prefix == "" {
		return body, nil
	}
	return strings.ToUpper(prefix) + "-" + body, nil
}

func randomFrom(chars string, length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid slug length: %d", length)
	}

	// Rejection sampling to avoid modulo bias.
	maxRandomByte := 256 - (256 % len(chars))

	out := make([]byte, length)
	buf := make([]byte, length*2)
	written := 0

	for written < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read secure random bytes: %w", err)
		}

		for _, b := range buf {
			if int(b) >= maxRandomByte {
				continue
			}
			out[written] = chars[int(b)%len(chars)]
			written++
			if written == length {
				break
			}
		}
	}

	return string(out), nil
}

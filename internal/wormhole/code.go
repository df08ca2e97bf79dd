package wormhole

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

var ErrInvalidCode = errors.New("invalid wormhole code")

var codePattern = regexp.MustCompile(`^[0-9]+(-[a-z]+)+$`)

// Code is a wormhole code of the form <nameplate>-<word>-<word>...
// The nameplate locates the rendezvous on the mailbox, the words are the
// secret both peers derive their session key from.
type Code string

// Nameplate returns the numeric channel prefix
func (c Code) Nameplate() string {
	nameplate, _, _ := strings.Cut(string(c), "-")
	return nameplate
}

// Words returns the secret words following the nameplate
func (c Code) Words() []string {
	_, rest, found := strings.Cut(string(c), "-")
	if !found {
		return nil
	}
	return strings.Split(rest, "-")
}

func (c Code) String() string {
	return string(c)
}

// ParseCode normalizes user input and checks it has the shape of a code.
// Whether the words are right is only known once the handshake runs.
func ParseCode(input string) (Code, error) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	normalized = strings.Join(strings.Fields(normalized), "-")
	if !codePattern.MatchString(normalized) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCode, input)
	}
	return Code(normalized), nil
}

// GenerateCode appends count random words to nameplate
func GenerateCode(nameplate string, count int) (Code, error) {
	if nameplate == "" || count < 1 {
		return "", fmt.Errorf("%w: nameplate %q with %d words", ErrInvalidCode, nameplate, count)
	}

	parts := make([]string, 0, count+1)
	parts = append(parts, nameplate)

	max := big.NewInt(int64(len(words)))
	for range count {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to pick code word: %w", err)
		}
		parts = append(parts, words[n.Int64()])
	}
	return Code(strings.Join(parts, "-")), nil
}

// GenerateNameplate picks a random nameplate in [1, limit]
func GenerateNameplate(limit int) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return "", fmt.Errorf("failed to pick nameplate: %w", err)
	}
	return n.Add(n, big.NewInt(1)).String(), nil
}

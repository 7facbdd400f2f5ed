// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Alphanumeric is the character set used for the random portion of IDs.
const Alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Generator produces IDs of the form Prefix + Length random characters.
type Generator struct {
	Prefix   string
	Alphabet string
	Length   int
}

var (
	// Layouts generates remote layout IDs.
	Layouts = Generator{Prefix: "lay-", Alphabet: Alphanumeric, Length: 12}

	// Requests generates request IDs for server logs.
	Requests = Generator{Prefix: "req-", Alphabet: Alphanumeric, Length: 8}
)

// New returns a new unique ID.
func (g Generator) New() (string, error) {
	id, err := nanoid.Generate(g.Alphabet, g.Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return g.Prefix + id, nil
}

// NewLayoutID returns a new remote layout ID.
func NewLayoutID() (string, error) {
	return Layouts.New()
}

// NewRequestID returns a new request ID.
func NewRequestID() (string, error) {
	return Requests.New()
}

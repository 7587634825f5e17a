// Package scope implements the scope algebra used by the authorization server.
//
// A scope is a space-delimited set of tokens. Every token matches the RFC 6749
// grammar 1*( %x21 / %x23-5B / %x5D-7E ). The canonical form of a scope sorts its
// tokens lexically, removes duplicates and joins them with a single space.
//
// All comparisons go through Normalize. A scope that fails the grammar check is
// never a subset of anything and nothing is a subset of it.
package scope

import (
	"errors"
	"regexp"
	"slices"
	"strings"
)

// ErrInvalid is returned when a scope does not match the scope grammar.
var ErrInvalid = errors.New("invalid scope")

var scopePattern = regexp.MustCompile(`^[\x21\x23-\x5B\x5D-\x7E]+( [\x21\x23-\x5B\x5D-\x7E]+)*$`)

// IsValid reports whether s is one or more scope tokens separated by single spaces.
func IsValid(s string) bool {
	return scopePattern.MatchString(s)
}

// Normalize returns the canonical form of s.
func Normalize(s string) (string, error) {
	tokens, err := parse(s)
	if err != nil {
		return "", err
	}
	return strings.Join(tokens, " "), nil
}

// IsSubset reports whether every token of s is also a token of t.
// It returns false when either argument is invalid.
func IsSubset(s, t string) bool {
	sub, err := parse(s)
	if err != nil {
		return false
	}
	super, err := parse(t)
	if err != nil {
		return false
	}
	for _, tok := range sub {
		if _, found := slices.BinarySearch(super, tok); !found {
			return false
		}
	}
	return true
}

// Merge returns the canonical union of s and t.
func Merge(s, t string) (string, error) {
	a, err := parse(s)
	if err != nil {
		return "", err
	}
	b, err := parse(t)
	if err != nil {
		return "", err
	}
	return Normalize(strings.Join(append(a, b...), " "))
}

// Contains reports whether the valid scope s includes token.
func Contains(s, token string) bool {
	tokens, err := parse(s)
	if err != nil {
		return false
	}
	_, found := slices.BinarySearch(tokens, token)
	return found
}

// Tokens returns the canonical tokens of s, or nil when s is invalid.
func Tokens(s string) []string {
	tokens, err := parse(s)
	if err != nil {
		return nil
	}
	return tokens
}

// parse validates s and returns its sorted, de-duplicated tokens.
func parse(s string) ([]string, error) {
	if !IsValid(s) {
		return nil, ErrInvalid
	}
	tokens := strings.Split(s, " ")
	slices.Sort(tokens)
	return slices.Compact(tokens), nil
}

// Package validator decides whether a chat message is worth a point.
package validator

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMinLength is the minimum trimmed message length when none is configured
const DefaultMinLength = 15

var (
	letterPattern = regexp.MustCompile(`[a-zA-Z]`)
	vowelPattern  = regexp.MustCompile(`[aeiouAEIOU]`)
)

// IsAwardWorthy reports whether text qualifies for a point.
// The text is trimmed and must be at least minLength characters long,
// contain a letter and a vowel, and must not be a single character repeated
// three or more times.
func IsAwardWorthy(text string, minLength int) bool {
	t := strings.TrimSpace(text)
	if utf8.RuneCountInString(t) < minLength {
		return false
	}
	if !letterPattern.MatchString(t) {
		return false
	}
	if !vowelPattern.MatchString(t) {
		return false
	}
	if isRepeatedRune(t) {
		return false
	}
	return true
}

// LongEnough reports whether the trimmed text has at least minLength characters
func LongEnough(text string, minLength int) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) >= minLength
}

// isRepeatedRune reports whether s is one character repeated at least three
// times. RE2 has no backreferences, so this replaces `(.)\1{2,}`; newlines
// never count as the repeated character.
func isRepeatedRune(s string) bool {
	if utf8.RuneCountInString(s) < 3 {
		return false
	}
	first, _ := utf8.DecodeRuneInString(s)
	if first == '\n' {
		return false
	}
	for _, r := range s {
		if r != first {
			return false
		}
	}
	return true
}

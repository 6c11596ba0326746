// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sqlite

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball"
)

// tokenize lowercases s and splits it on anything that is not a letter or
// digit, matching the FTS5 unicode61 tokenizer closely enough that query
// terms and indexed terms agree.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func stem(word string) string {
	stemmed, err := snowball.Stem(word, "english", true)
	if err != nil || stemmed == "" {
		return word
	}
	return stemmed
}

// stems returns the English Snowball stem of every token in s.
func stems(s string) string {
	tokens := tokenize(s)
	for i, t := range tokens {
		tokens[i] = stem(t)
	}
	return strings.Join(tokens, " ")
}

// matchExpr builds an FTS5 expression requiring every term of text in the
// text column, or the stemmed terms in the fuzzy column. It returns "" when
// text has no terms.
func matchExpr(text string, fuzzy bool) string {
	terms := tokenize(text)
	if len(terms) == 0 {
		return ""
	}
	column := "text"
	if fuzzy {
		column = "fuzzy"
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		if fuzzy {
			t = stem(t)
		}
		parts[i] = column + `:"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(parts, " AND ")
}

// Package sqlcheck classifies SQL statements without parsing them fully.
// It tokenizes outside of string literals, quoted identifiers and comments,
// which is enough to tell reads from writes and to count statements.
//
// PostgreSQL and SQLite disagree on what a literal or a comment is, so every
// statement is lexed once per dialect and must pass under both.
package sqlcheck

import (
	"errors"
	"strings"
	"unicode"
)

var (
	// ErrEmpty is returned for blank input
	ErrEmpty = errors.New("empty SQL statement")
	// ErrMultipleStatements is returned when more than one statement is present
	ErrMultipleStatements = errors.New("only a single SQL statement is allowed")
	// ErrWriteStatement is returned when a data-modifying statement is not allowed
	ErrWriteStatement = errors.New("only read-only statements are allowed")
)

// readKeywords may start a read-only statement
var readKeywords = map[string]bool{
	"SELECT": true, "WITH": true, "SHOW": true, "EXPLAIN": true,
	"VALUES": true, "TABLE": true,
}

// writeVerbs start a data-modifying clause anywhere in a statement
var writeVerbs = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true,
	"REPLACE": true, "INTO": true,
}

// explainWrites are statements EXPLAIN ANALYZE will actually run
var explainWrites = map[string]bool{
	"CREATE": true, "EXECUTE": true, "DECLARE": true,
}

// writeFunctions change state when called from a SELECT
var writeFunctions = map[string]bool{
	"SETVAL": true, "NEXTVAL": true, "SET_CONFIG": true,
	"PG_TERMINATE_BACKEND": true, "PG_CANCEL_BACKEND": true,
	"PG_RELOAD_CONF": true, "PG_ROTATE_LOGFILE": true,
	"LO_IMPORT": true, "LO_EXPORT": true, "LO_UNLINK": true,
	"LO_CREATE": true, "LO_FROM_BYTEA": true, "LO_PUT": true,
	"DBLINK": true, "DBLINK_EXEC": true,
	"QUERY_TO_XML": true, "QUERY_TO_XMLSCHEMA": true, "QUERY_TO_XML_AND_XMLSCHEMA": true,
}

type dialect int

const (
	postgres dialect = iota
	sqlite
)

var dialects = []dialect{postgres, sqlite}

// token is an upper-cased word or a ";" separator
type token struct {
	word string
	// call is set when the word is followed by "(" with only spaces between
	call bool
}

// Check validates that sql is a single statement and, unless allowWrites is
// set, read-only.
func Check(sql string, allowWrites bool) error {
	for _, d := range dialects {
		toks := tokenize(sql, d)
		if len(words(toks)) == 0 {
			return ErrEmpty
		}
		if statementCount(toks) > 1 {
			return ErrMultipleStatements
		}
		if !allowWrites && !readOnly(toks) {
			return ErrWriteStatement
		}
	}
	return nil
}

// IsReadOnly reports whether sql only reads data
func IsReadOnly(sql string) bool {
	for _, d := range dialects {
		if !readOnly(tokenize(sql, d)) {
			return false
		}
	}
	return true
}

// ReturnsRows reports whether executing sql yields a result set
func ReturnsRows(sql string) bool {
	w := words(tokenize(sql, postgres))
	if len(w) == 0 {
		return false
	}
	for _, t := range w {
		if t.word == "RETURNING" && !t.call {
			return true
		}
	}
	switch {
	case w[0].word == "EXPLAIN" || w[0].word == "PRAGMA":
		return true
	case !readKeywords[w[0].word]:
		return false
	}
	// WITH ... INSERT and SELECT ... INTO report affected rows instead
	for _, t := range w[1:] {
		if writeVerbs[t.word] && !t.call {
			return false
		}
	}
	return true
}

// FirstKeyword returns the upper-cased leading keyword, or "" for blank input
func FirstKeyword(sql string) string {
	w := words(tokenize(sql, postgres))
	if len(w) == 0 {
		return ""
	}
	return w[0].word
}

// Statements returns the number of non-empty statements in sql, taking the
// larger count when the dialects disagree
func Statements(sql string) int {
	n := 0
	for _, d := range dialects {
		if count := statementCount(tokenize(sql, d)); count > n {
			n = count
		}
	}
	return n
}

func readOnly(toks []token) bool {
	w := words(toks)
	if len(w) == 0 || !readKeywords[w[0].word] {
		return false
	}
	explain := w[0].word == "EXPLAIN"
	for _, t := range w[1:] {
		if t.call {
			if writeFunctions[t.word] {
				return false
			}
			continue
		}
		if writeVerbs[t.word] || (explain && explainWrites[t.word]) {
			return false
		}
	}
	return true
}

func words(toks []token) []token {
	out := make([]token, 0, len(toks))
	for _, t := range toks {
		if t.word != ";" {
			out = append(out, t)
		}
	}
	return out
}

func statementCount(toks []token) int {
	count := 0
	pending := false
	for _, t := range toks {
		if t.word == ";" {
			if pending {
				count++
			}
			pending = false
			continue
		}
		pending = true
	}
	if pending {
		count++
	}
	return count
}

// tokenize returns the words and ";" separators found outside of literals and
// comments, as d lexes them
func tokenize(sql string, d dialect) []token {
	var (
		toks      []token
		word      strings.Builder
		afterWord bool
	)
	flush := func() {
		if word.Len() > 0 {
			toks = append(toks, token{word: strings.ToUpper(word.String())})
			word.Reset()
			afterWord = true
		}
	}

	r := []rune(sql)
	for i := 0; i < len(r); i++ {
		c := r[i]
		switch {
		case c == '\'' && d == postgres && strings.EqualFold(word.String(), "E"):
			// E'...' takes backslash escapes
			word.Reset()
			i = skipEscaped(r, i)
			afterWord = false
		case c == '\'' || c == '"' || (c == '`' && d == sqlite):
			flush()
			i = skipQuoted(r, i, c, c)
			afterWord = false
		case c == '[' && d == sqlite:
			flush()
			i = skipQuoted(r, i, '[', ']')
			afterWord = false
		case c == '$' && d == postgres:
			if word.Len() > 0 {
				word.WriteRune(c)
				continue
			}
			flush()
			if end, ok := skipDollarQuoted(r, i); ok {
				i = end
			}
			afterWord = false
		case c == '-' && i+1 < len(r) && r[i+1] == '-':
			flush()
			for i < len(r) && r[i] != '\n' {
				i++
			}
			afterWord = false
		case c == '/' && i+1 < len(r) && r[i+1] == '*':
			flush()
			i = skipBlockComment(r, i, d == postgres)
			afterWord = false
		case c == ';':
			flush()
			toks = append(toks, token{word: ";"})
			afterWord = false
		case c == '(':
			flush()
			if afterWord {
				toks[len(toks)-1].call = true
			}
			afterWord = false
		case unicode.IsSpace(c):
			flush()
		case unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_':
			word.WriteRune(c)
		default:
			flush()
			afterWord = false
		}
	}
	flush()
	return toks
}

// skipQuoted returns the index of the closing quote; a doubled close is an
// escape
func skipQuoted(r []rune, start int, open, end rune) int {
	for i := start + 1; i < len(r); i++ {
		if r[i] == end {
			if open == end && i+1 < len(r) && r[i+1] == end {
				i++
				continue
			}
			return i
		}
	}
	return len(r)
}

// skipEscaped is skipQuoted for PostgreSQL escape strings
func skipEscaped(r []rune, start int) int {
	for i := start + 1; i < len(r); i++ {
		switch {
		case r[i] == '\\':
			i++
		case r[i] == '\'' && i+1 < len(r) && r[i+1] == '\'':
			i++
		case r[i] == '\'':
			return i
		}
	}
	return len(r)
}

// skipDollarQuoted returns the index of the last rune of the closing
// delimiter when r[start:] opens a $tag$ string. $1 parameters are not tags.
func skipDollarQuoted(r []rune, start int) (int, bool) {
	j := start + 1
	for j < len(r) && (unicode.IsLetter(r[j]) || r[j] == '_' || (unicode.IsDigit(r[j]) && j > start+1)) {
		j++
	}
	if j >= len(r) || r[j] != '$' {
		return start, false
	}
	tag := string(r[start : j+1])
	rest := string(r[j+1:])
	idx := strings.Index(rest, tag)
	if idx < 0 {
		return len(r), true
	}
	return j + len([]rune(rest[:idx])) + len([]rune(tag)), true
}

// skipBlockComment returns the index of the closing "/". PostgreSQL comments
// nest; SQLite comments end at the first "*/".
func skipBlockComment(r []rune, start int, nested bool) int {
	depth := 1
	for i := start + 2; i < len(r); i++ {
		switch {
		case nested && r[i] == '/' && i+1 < len(r) && r[i+1] == '*':
			depth++
			i++
		case r[i] == '*' && i+1 < len(r) && r[i+1] == '/':
			depth--
			i++
			if depth == 0 {
				return i
			}
		}
	}
	return len(r)
}

// SPDX-License-Identifier: Apache-2.0

// Package shellparse splits interpreter and walker command strings into argv
// slices using POSIX-like word rules: whitespace separates words, single
// quotes are literal, double quotes allow backslash escapes of `"`, `\`, `$`
// and "`", and a bare backslash escapes the next rune.
package shellparse

import (
	"errors"
	"strings"
	"unicode"
)

var (
	// ErrUnclosedQuote is returned when a quoted section never terminates.
	ErrUnclosedQuote = errors.New("unclosed quote in command string")

	// ErrTrailingEscape is returned when the input ends in a lone backslash.
	ErrTrailingEscape = errors.New("trailing escape character at end of command")
)

type state int

const (
	stateSpace state = iota
	stateWord
	stateSingle
	stateDouble
)

// Split parses input into words.
//
//	Split(`python3 -u "my app.py"`) => ["python3", "-u", "my app.py"]
//	Split(`sh -c 'echo $HOME'`)     => ["sh", "-c", "echo $HOME"]
func Split(input string) ([]string, error) {
	words := []string{}
	var word strings.Builder
	st := stateSpace
	escaped := false

	flush := func() {
		words = append(words, word.String())
		word.Reset()
	}

	for _, r := range input {
		if escaped {
			if st == stateDouble && !strings.ContainsRune("\"\\$`", r) {
				word.WriteRune('\\')
			}
			word.WriteRune(r)
			escaped = false
			continue
		}

		switch st {
		case stateSingle:
			if r == '\'' {
				st = stateWord
			} else {
				word.WriteRune(r)
			}
		case stateDouble:
			switch r {
			case '"':
				st = stateWord
			case '\\':
				escaped = true
			default:
				word.WriteRune(r)
			}
		default:
			switch {
			case unicode.IsSpace(r):
				if st == stateWord {
					flush()
				}
				st = stateSpace
			case r == '\'':
				st = stateSingle
			case r == '"':
				st = stateDouble
			case r == '\\':
				escaped = true
				st = stateWord
			default:
				word.WriteRune(r)
				st = stateWord
			}
		}
	}

	if escaped {
		return nil, ErrTrailingEscape
	}
	if st == stateSingle || st == stateDouble {
		return nil, ErrUnclosedQuote
	}
	if st == stateWord {
		flush()
	}
	return words, nil
}

// Join quotes each argument when needed so that Split(Join(args)) == args.
func Join(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = quote(arg)
	}
	return strings.Join(quoted, " ")
}

func quote(arg string) string {
	if arg == "" {
		return "''"
	}
	if !strings.ContainsFunc(arg, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune("'\"\\$`", r)
	}) {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

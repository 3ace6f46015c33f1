package console

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Matcher reports whether a record of output is the expected prompt.
type Matcher func(candidate string) bool

// ErrBadPattern is returned by Glob for a malformed wildcard pattern.
var ErrBadPattern = errors.New("syntax error in pattern")

// Glob returns a Matcher for a wildcard pattern over the whole candidate:
// "*" matches any run of characters, "?" one character and "[...]" a
// class ("[!...]" or "[^...]" negated). Every other character, "/" and
// "\" included, matches itself. Trailing blanks of the candidate are
// ignored, so "Password:" matches the prompt "Password: ".
func Glob(pattern string) (Matcher, error) {
	re, err := globRegexp(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid prompt pattern %q: %w", pattern, err)
	}
	return func(candidate string) bool {
		return re.MatchString(strings.TrimRight(candidate, " \t"))
	}, nil
}

// globRegexp translates a wildcard pattern to an anchored expression.
func globRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`^(?s:`)
	rs := []rune(pattern)
	for i := 0; i < len(rs); i++ {
		switch r := rs[i]; r {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		case '[':
			j := i + 1
			if j < len(rs) && (rs[j] == '!' || rs[j] == '^') {
				j++
			}
			if j < len(rs) && rs[j] == ']' {
				j++
			}
			for j < len(rs) && rs[j] != ']' {
				j++
			}
			if j >= len(rs) {
				return nil, ErrBadPattern
			}
			b.WriteString(globClass(rs[i+1 : j]))
			i = j
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(`)$`)
	return regexp.Compile(b.String())
}

// globClass renders the body of a "[...]" class, keeping ranges and
// escaping everything else.
func globClass(body []rune) string {
	var b strings.Builder
	b.WriteByte('[')
	if len(body) > 0 && (body[0] == '!' || body[0] == '^') {
		b.WriteByte('^')
		body = body[1:]
	}
	for i, r := range body {
		switch {
		case r == '-' && i > 0 && i < len(body)-1:
			b.WriteByte('-')
		case r == '-':
			b.WriteString(`\-`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte(']')
	return b.String()
}

// MustGlob is like Glob but panics if the pattern is invalid.
func MustGlob(pattern string) Matcher {
	m, err := Glob(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

// Exact returns a Matcher for candidates equal to s, ignoring trailing blanks
// of both.
func Exact(s string) Matcher {
	s = strings.TrimRight(s, " \t")
	return func(candidate string) bool {
		return strings.TrimRight(candidate, " \t") == s
	}
}

// Regexp returns a Matcher for candidates that re matches.
func Regexp(re *regexp.Regexp) Matcher {
	return re.MatchString
}

// ExpectPrompt reads records until one satisfies match, and returns all of
// them; the last one is the prompt. A partial record that does not match
// gets up to Config.PromptTimeout for more text to arrive and is then
// re-read joined with it. If the child goes quiet on a non-matching
// fragment, the error wraps ErrPromptMismatch; if the output ends first,
// ErrPromptTimeout.
//
// If input is given and the prompt was found, input is written with Write.
func (p *Process) ExpectPrompt(match Matcher, input ...string) ([]string, error) {
	return p.expect(match, "", input)
}

// ExpectGlob is ExpectPrompt with a Glob pattern.
func (p *Process) ExpectGlob(pattern string, input ...string) ([]string, error) {
	m, err := Glob(pattern)
	if err != nil {
		return nil, err
	}
	return p.expect(m, pattern, input)
}

func (p *Process) expect(match Matcher, pattern string, input []string) ([]string, error) {
	var seen []string
	for {
		text, ok, err := p.Read()
		if err != nil {
			return seen, err
		}
		if !ok {
			return seen, &PromptError{Err: ErrPromptTimeout, Pattern: pattern, Last: last(seen)}
		}
		seen = append(seen, text)
		if match(text) {
			break
		}
		if p.IsLine() {
			continue
		}

		more, err := p.Wait(p.cfg.promptTimeout())
		if err != nil {
			return seen, err
		}
		if !more {
			return seen, &PromptError{Err: ErrPromptMismatch, Pattern: pattern, Last: text}
		}
		// The next record repeats this fragment.
		seen = seen[:len(seen)-1]
	}

	p.log.WithField("prompt", seen[len(seen)-1]).Debug("prompt matched")
	for _, s := range input {
		if err := p.Write(s); err != nil {
			return seen, err
		}
	}
	return seen, nil
}

func last(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1]
}

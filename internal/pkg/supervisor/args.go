package supervisor

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/google/shlex"
)

var placeholder = regexp.MustCompile(`\$\{[A-Za-z_][A-Za-z0-9_.-]*\}`)

// CommandArgs splits commandLine with POSIX shell quoting rules and substitutes
// ${name} placeholders from params inside each token. Substitution happens after
// splitting, so a parameter value always stays within a single argument and is
// never interpreted by a shell. Unknown placeholders are left untouched.
func CommandArgs(commandLine string, params map[string]any) ([]string, error) {
	tokens, err := shlex.Split(commandLine)
	if err != nil {
		return nil, fmt.Errorf("parse command line: %w", err)
	}
	if len(tokens) == 0 {
		return nil, errors.New("empty command line")
	}

	if len(params) == 0 {
		return tokens, nil
	}

	for i, tok := range tokens {
		tokens[i] = placeholder.ReplaceAllStringFunc(tok, func(m string) string {
			v, ok := params[m[2:len(m)-1]]
			if !ok {
				return m
			}
			return stringify(v)
		})
	}
	return tokens, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; print integers without an exponent.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}

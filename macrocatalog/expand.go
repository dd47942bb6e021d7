package macrocatalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/prism-engine/editor-host/protocol"
)

var (
	// ErrMissingArgument marks an invocation that omits a required argument.
	ErrMissingArgument = errors.New("missing required macro argument")
	// ErrUnknownArgument marks an invocation that supplies an argument the
	// macro does not declare.
	ErrUnknownArgument = errors.New("unknown macro argument")
)

// ExpandOptions tunes macro expansion.
type ExpandOptions struct {
	// RejectUnknownArguments fails the invocation when args carries a name
	// the macro does not declare. Off, extra arguments are ignored.
	RejectUnknownArguments bool
}

// Expand substitutes args into the macro's command lines and returns the
// expanded lines, ready for the session's command path. Every placeholder
// must resolve: required arguments must be supplied, optional ones expand to
// the empty string when absent. Each expanded line must still be a valid
// command.
func Expand(macro Macro, args map[string]string, opts ExpandOptions) ([]string, error) {
	declared := make(map[string]MacroArgument, len(macro.Arguments))
	for _, arg := range macro.Arguments {
		declared[arg.Name] = arg
	}

	values := make(map[string]string, len(args))
	for key, value := range args {
		name := strings.TrimSpace(key)
		if name == "" {
			continue
		}
		if _, ok := declared[name]; !ok {
			if opts.RejectUnknownArguments {
				return nil, fmt.Errorf("%w: %s", ErrUnknownArgument, name)
			}
			continue
		}
		values[name] = value
	}

	for _, arg := range macro.Arguments {
		if _, ok := values[arg.Name]; ok {
			continue
		}
		if arg.Required {
			return nil, fmt.Errorf("%w: %s", ErrMissingArgument, arg.Name)
		}
		values[arg.Name] = ""
	}

	expanded := make([]string, 0, len(macro.Commands))
	for i, command := range macro.Commands {
		line := substitutePlaceholders(command, values)
		if leftover := macroArgumentPattern.FindStringSubmatch(line); leftover != nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingArgument, strings.TrimSpace(leftover[1]))
		}
		line = protocol.NormalizeCommand(line)
		if err := protocol.ValidateCommand(line); err != nil {
			return nil, fmt.Errorf("macro %s command %d: %w", macro.Name, i+1, err)
		}
		expanded = append(expanded, line)
	}
	return expanded, nil
}

func substitutePlaceholders(template string, values map[string]string) string {
	matches := macroArgumentPattern.FindAllStringSubmatchIndex(template, -1)
	if len(matches) == 0 {
		return template
	}

	var b strings.Builder
	b.Grow(len(template))
	last := 0

	for _, match := range matches {
		if len(match) < 4 {
			continue
		}
		start, end := match[0], match[1]
		keyStart, keyEnd := match[2], match[3]

		b.WriteString(template[last:start])

		key := strings.TrimSpace(template[keyStart:keyEnd])
		if value, ok := values[key]; ok {
			b.WriteString(value)
		} else {
			b.WriteString(template[start:end])
		}

		last = end
	}

	b.WriteString(template[last:])
	return b.String()
}

// Package util parses the line-oriented control protocol read from stdin.
package util

import (
	"fmt"
	"strings"

	"github.com/tivoli-arcade/gokart/internal/dispatcher"
)

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// FixEscapeQuotes replaces escaped double quotes ("") with single double quotes (").
func FixEscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// SplitFields splits on whitespace but keeps double-quoted runs together.
// A doubled quote inside a quoted run is a literal quote.
func SplitFields(s string) []string {
	var (
		fields  []string
		b       strings.Builder
		quoted  bool
		pending bool
	)
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' && quoted && i+1 < len(runes) && runes[i+1] == '"':
			b.WriteRune('"')
			i++
		case r == '"':
			quoted = !quoted
			pending = true
		case !quoted && (r == ' ' || r == '\t'):
			if pending {
				fields = append(fields, b.String())
				b.Reset()
				pending = false
			}
		default:
			b.WriteRune(r)
			pending = true
		}
	}
	if pending {
		fields = append(fields, b.String())
	}
	return fields
}

// ParseLine turns one input line into a dispatcher command and its
// arguments. Recognised forms:
//
//	forward|backward|left|right|up|down [press|release]
//	start ["player name"]
//	restart | end
//	resize <width> <height>
//	:COMMAND: [args...]
func ParseLine(line string) (string, []string, error) {
	fields := SplitFields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("empty line")
	}

	word, args := fields[0], fields[1:]
	if strings.HasPrefix(word, ":") && strings.HasSuffix(word, ":") && len(word) > 1 {
		return word, args, nil
	}

	switch strings.ToLower(word) {
	case "forward", "backward", "back", "left", "right", "up", "down":
		action := "press"
		if len(args) > 0 {
			action = strings.ToLower(args[0])
		}
		if action != "press" && action != "release" {
			return "", nil, fmt.Errorf("unknown control action %q", action)
		}
		return dispatcher.CmdControl, []string{strings.ToLower(word), action}, nil
	case "start":
		return dispatcher.CmdRaceStart, args, nil
	case "restart":
		return dispatcher.CmdRaceRestart, nil, nil
	case "end", "stop":
		return dispatcher.CmdRaceEnd, nil, nil
	case "resize":
		if len(args) != 2 {
			return "", nil, fmt.Errorf("resize needs width and height")
		}
		return dispatcher.CmdResize, args, nil
	}
	return "", nil, fmt.Errorf("unknown input %q", word)
}

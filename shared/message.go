package shared

import (
	"fmt"
	"strconv"
	"strings"
)

// Message is one parsed control channel line.
type Message struct {
	Verb string
	Args []string
	Raw  string
}

// ParseMessage splits a control line into its verb and arguments. The verb is
// upper-cased, a trailing "\r" is dropped. Empty lines yield an empty verb.
func ParseMessage(line string) Message {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Message{Raw: line}
	}
	return Message{
		Verb: strings.ToUpper(fields[0]),
		Args: fields[1:],
		Raw:  line,
	}
}

// Uint returns argument i parsed as an unsigned integer of the given bit size.
func (m Message) Uint(i int, bitSize int) (uint64, bool) {
	if i < 0 || i >= len(m.Args) {
		return 0, false
	}
	v, err := strconv.ParseUint(m.Args[i], 10, bitSize)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FormatMessage joins verb and args with single spaces, without terminator.
func FormatMessage(verb string, args ...interface{}) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, verb)
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	return strings.Join(parts, " ")
}

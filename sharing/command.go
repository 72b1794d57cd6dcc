package sharing

import (
	"strconv"
	"strings"
)

// CommandKind enumerates the control-channel commands.
type CommandKind int

// The commands understood by the tracker.
const (
	Unknown CommandKind = iota
	Auth
	Port
	Heartbeat
	Get
	ListPeers
	ListFiles
	Publish
	Search
	Unpublish
	Exit
)

var commandNames = [...]string{
	Unknown:   "unknown",
	Auth:      "auth",
	Port:      "port",
	Heartbeat: "hbt",
	Get:       "get",
	ListPeers: "lap",
	ListFiles: "lpf",
	Publish:   "pub",
	Search:    "sch",
	Unpublish: "unp",
	Exit:      "xit",
}

var commandKinds = func() map[string]CommandKind {
	m := make(map[string]CommandKind, len(commandNames))
	for k, name := range commandNames {
		if CommandKind(k) != Unknown {
			m[name] = CommandKind(k)
		}
	}
	return m
}()

// String returns the wire name of the command.
func (k CommandKind) String() string {
	if k < 0 || int(k) >= len(commandNames) {
		return commandNames[Unknown]
	}
	return commandNames[k]
}

// arity is the number of arguments each command takes. Commands without an
// entry take none and ignore trailing tokens.
var arity = map[CommandKind]int{
	Auth:      2,
	Port:      1,
	Get:       1,
	Publish:   1,
	Search:    1,
	Unpublish: 1,
}

// Command is one parsed control-channel frame.
type Command struct {
	Kind CommandKind
	Args []string
}

// ParseCommand splits a frame into whitespace-delimited tokens and resolves
// the first one to a CommandKind.
func ParseCommand(frame string) Command {
	tokens := strings.Fields(frame)
	if len(tokens) == 0 {
		return Command{Kind: Unknown}
	}

	kind, ok := commandKinds[tokens[0]]
	if !ok {
		return Command{Kind: Unknown, Args: tokens}
	}
	return Command{Kind: kind, Args: tokens[1:]}
}

// WellFormed reports whether the command carries exactly the number of
// arguments its kind requires.
func (c Command) WellFormed() bool {
	n, ok := arity[c.Kind]
	if !ok {
		return c.Kind != Unknown
	}
	return len(c.Args) == n
}

// Arg returns the i-th argument or the empty string.
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// String renders the command back into its wire form.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Kind.String()
	}
	return c.Kind.String() + " " + strings.Join(c.Args, " ")
}

// AuthCommand returns the frame a peer sends to authenticate.
func AuthCommand(username, password string) string {
	return Command{Kind: Auth, Args: []string{username, password}}.String()
}

// PortCommand returns the frame a peer sends to register its upload port.
func PortCommand(port uint16) string {
	return Command{Kind: Port, Args: []string{strconv.Itoa(int(port))}}.String()
}

// ParsePort parses the argument of a `port` command.
func ParsePort(s string) (uint16, error) {
	p, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	if p == 0 {
		return 0, ErrInvalidRequest
	}
	return uint16(p), nil
}

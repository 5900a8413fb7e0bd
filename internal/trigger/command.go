// Package trigger parses motion commands and serves them over HTTP and
// websocket.
package trigger

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrUnknownCommand is returned for a command name that is not recognised.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMalformedCommand is returned when a command cannot be decoded or its
	// arguments are invalid.
	ErrMalformedCommand = errors.New("malformed command")
)

// Name identifies a trigger command.
type Name string

const (
	CmdShake          Name = "shake"
	CmdShakeIntensity Name = "shake-intensity"
	CmdStartSpeaking  Name = "start-speaking"
	CmdStopSpeaking   Name = "stop-speaking"
	CmdSetMode        Name = "set-mode"
	CmdAutoShake      Name = "auto-shake"
	CmdReseed         Name = "reseed"
	CmdSubscribe      Name = "subscribe"
	CmdUnsubscribe    Name = "unsubscribe"
)

var known = map[Name]bool{
	CmdShake:          true,
	CmdShakeIntensity: true,
	CmdStartSpeaking:  true,
	CmdStopSpeaking:   true,
	CmdSetMode:        true,
	CmdAutoShake:      true,
	CmdReseed:         true,
	CmdSubscribe:      true,
	CmdUnsubscribe:    true,
}

// aliases maps older client spellings, after normalisation.
var aliases = map[string]Name{
	"start-speak":   CmdStartSpeaking,
	"stop-speak":    CmdStopSpeaking,
	"intense-shake": CmdShakeIntensity,
	"mode":          CmdSetMode,
}

// Command is one parsed trigger. Intensity is meaningful for the shake
// commands (0 means the configured default), Mode for set-mode and Enabled
// for auto-shake.
type Command struct {
	ID        string  `json:"id,omitempty"`
	Name      Name    `json:"command"`
	Intensity float32 `json:"intensity,omitempty"`
	Mode      string  `json:"mode,omitempty"`
	Enabled   bool    `json:"enabled,omitempty"`
}

func (c Command) String() string {
	switch c.Name {
	case CmdShake, CmdShakeIntensity:
		if c.Intensity > 0 {
			return fmt.Sprintf("%s %g", c.Name, c.Intensity)
		}
	case CmdSetMode:
		return fmt.Sprintf("%s %s", c.Name, c.Mode)
	case CmdAutoShake:
		if c.Enabled {
			return string(c.Name) + " on"
		}
		return string(c.Name) + " off"
	}
	return string(c.Name)
}

// wireCommand is the JSON form. Enabled is a pointer so a missing field can
// be told apart from false.
type wireCommand struct {
	ID        string   `json:"id"`
	Command   string   `json:"command"`
	Intensity *float32 `json:"intensity"`
	Mode      string   `json:"mode"`
	Enabled   *bool    `json:"enabled"`
}

// Parse decodes one command. JSON objects use the "command" field, for
// example {"command":"START_SPEAK"} or {"command":"shake","intensity":1.5};
// anything else is read as a text line such as "shake 1.5",
// "set-mode vertical-bounce" or "auto-shake off".
func Parse(data []byte) (Command, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return Command{}, fmt.Errorf("%w: empty input", ErrMalformedCommand)
	}
	if strings.HasPrefix(text, "{") {
		return parseJSON([]byte(text))
	}
	return parseText(text)
}

func parseJSON(data []byte) (Command, error) {
	var w wireCommand
	if err := json.Unmarshal(data, &w); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	name, err := normalize(w.Command)
	if err != nil {
		return Command{}, err
	}

	cmd := Command{ID: w.ID, Name: name, Mode: w.Mode}
	if w.Intensity != nil {
		cmd.Intensity = *w.Intensity
	}
	switch name {
	case CmdAutoShake:
		if w.Enabled == nil {
			return Command{}, fmt.Errorf("%w: auto-shake needs enabled", ErrMalformedCommand)
		}
		cmd.Enabled = *w.Enabled
	case CmdSetMode:
		if cmd.Mode == "" {
			return Command{}, fmt.Errorf("%w: set-mode needs a mode", ErrMalformedCommand)
		}
	}
	return cmd, checkIntensity(cmd)
}

func parseText(text string) (Command, error) {
	fields := strings.Fields(text)
	name, err := normalize(fields[0])
	if err != nil {
		return Command{}, err
	}
	args := fields[1:]
	cmd := Command{Name: name}

	switch name {
	case CmdShake, CmdShakeIntensity:
		if len(args) > 1 {
			return Command{}, fmt.Errorf("%w: %s takes at most one argument", ErrMalformedCommand, name)
		}
		if len(args) == 1 {
			v, err := strconv.ParseFloat(args[0], 32)
			if err != nil {
				return Command{}, fmt.Errorf("%w: intensity %q", ErrMalformedCommand, args[0])
			}
			cmd.Intensity = float32(v)
		}
	case CmdSetMode:
		if len(args) != 1 {
			return Command{}, fmt.Errorf("%w: set-mode needs a mode", ErrMalformedCommand)
		}
		cmd.Mode = args[0]
	case CmdAutoShake:
		if len(args) != 1 {
			return Command{}, fmt.Errorf("%w: auto-shake needs on or off", ErrMalformedCommand)
		}
		switch strings.ToLower(args[0]) {
		case "on", "true", "1":
			cmd.Enabled = true
		case "off", "false", "0":
		default:
			return Command{}, fmt.Errorf("%w: auto-shake %q", ErrMalformedCommand, args[0])
		}
	default:
		if len(args) > 0 {
			return Command{}, fmt.Errorf("%w: %s takes no arguments", ErrMalformedCommand, name)
		}
	}
	return cmd, checkIntensity(cmd)
}

// normalize lowercases s, maps underscores to hyphens and resolves aliases.
func normalize(s string) (Name, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	if key == "" {
		return "", fmt.Errorf("%w: missing command", ErrMalformedCommand)
	}
	if n, ok := aliases[key]; ok {
		return n, nil
	}
	if n := Name(key); known[n] {
		return n, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

func checkIntensity(c Command) error {
	if c.Intensity < 0 {
		return fmt.Errorf("%w: negative intensity %g", ErrMalformedCommand, c.Intensity)
	}
	return nil
}

package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// MaxTimerSeconds is the longest countdown a plug accepts.
const MaxTimerSeconds = math.MaxInt32

var ErrTimerTooLong = errors.New("timer duration too long")

type CommandKind string

const (
	CommandOn    CommandKind = "on"
	CommandOff   CommandKind = "off"
	CommandTimer CommandKind = "timer"
)

// Command is published once to CommandTopic and never acknowledged.
type Command struct {
	Plug    PlugId      `json:"plug"`
	Kind    CommandKind `json:"cmd"`
	Seconds int         `json:"seconds,omitempty"`
}

func PowerCommand(id PlugId, on bool) Command {
	if on {
		return Command{Plug: id, Kind: CommandOn}
	}
	return Command{Plug: id, Kind: CommandOff}
}

func TimerCommand(id PlugId, seconds int) Command {
	return Command{Plug: id, Kind: CommandTimer, Seconds: seconds}
}

func (c Command) Validate() error {
	switch c.Kind {
	case CommandOn, CommandOff:
		if c.Seconds != 0 {
			return fmt.Errorf("command %s takes no seconds", c.Kind)
		}
	case CommandTimer:
		if c.Seconds <= 0 {
			return fmt.Errorf("timer command needs a positive duration, got %d", c.Seconds)
		}
		if c.Seconds > MaxTimerSeconds {
			return fmt.Errorf("%w: %d seconds", ErrTimerTooLong, c.Seconds)
		}
	default:
		return fmt.Errorf("unknown command %q", c.Kind)
	}
	return nil
}

func (c Command) Payload() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(c)
}

func DecodeCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	return cmd, cmd.Validate()
}

// TimerSeconds is the duration entered in the panel's timer form. Totals
// above MaxTimerSeconds are rejected instead of wrapping around.
func TimerSeconds(hours, minutes, seconds int) (int, error) {
	for _, v := range []int{hours, minutes, seconds} {
		if v > MaxTimerSeconds || v < -MaxTimerSeconds {
			return 0, fmt.Errorf("%w: %dh %dm %ds", ErrTimerTooLong, hours, minutes, seconds)
		}
	}

	total := int64(hours)*3600 + int64(minutes)*60 + int64(seconds)
	if total > MaxTimerSeconds {
		return 0, fmt.Errorf("%w: %d seconds", ErrTimerTooLong, total)
	}
	if total < 0 {
		return 0, nil
	}
	return int(total), nil
}

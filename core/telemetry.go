package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

var ErrNotAnObject = errors.New("telemetry payload is not a JSON object")

// RelayState holds the raw relay field of a reading. Only the JSON number 1
// means the relay is closed; 0, null, 2, "1" and anything else read as open.
type RelayState struct {
	on bool
}

func (r *RelayState) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	n, ok := v.(json.Number)
	if !ok {
		r.on = false
		return nil
	}
	f, err := n.Float64()
	r.on = err == nil && f == 1
	return nil
}

func (r RelayState) MarshalJSON() ([]byte, error) {
	if r.on {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

func (r RelayState) On() bool {
	return r.on
}

func Relay(on bool) RelayState {
	return RelayState{on: on}
}

// Reading is one telemetry message from the plug hub.
type Reading struct {
	Voltage float64    `json:"voltage"`
	Current float64    `json:"current"`
	Relay   RelayState `json:"relay"`
	Timer   int        `json:"timer"`
}

func (r Reading) Power() float64 {
	return r.Voltage * r.Current
}

func DecodeReading(payload []byte) (Reading, error) {
	var reading Reading

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return reading, ErrNotAnObject
	}

	if err := json.Unmarshal(trimmed, &reading); err != nil {
		return Reading{}, fmt.Errorf("decode telemetry: %w", err)
	}

	return reading, nil
}

// Card is the rendered telemetry card of a panel.
type Card struct {
	Title   string `json:"title"`
	Voltage string `json:"voltage"`
	Current string `json:"current"`
	Power   string `json:"power"`
	Timer   string `json:"timer"`
}

func RenderCard(id PlugId, r Reading) Card {
	return Card{
		Title:   fmt.Sprintf("Plug %d", id),
		Voltage: "Voltage: " + toFixed(r.Voltage, 1) + " V",
		Current: "Current: " + toFixed(r.Current, 3) + " A",
		Power:   "Power: " + toFixed(r.Power(), 2) + " W",
		Timer:   fmt.Sprintf("Timer: %d sec", r.Timer),
	}
}

// toFixed formats x with the given number of decimals, rounding the exact
// value of x half away from zero. fmt rounds exact ties to even, which
// would show 220.25 as 220.2 where the hub's own pages show 220.3.
func toFixed(x float64, decimals int) string {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return strconv.FormatFloat(x, 'f', decimals, 64)
	}

	sign := ""
	if x < 0 {
		sign = "-"
		x = -x
	}

	scaled := new(big.Rat).SetFloat64(x)
	scaled.Mul(scaled, new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)))
	scaled.Add(scaled, big.NewRat(1, 2))
	digits := new(big.Int).Quo(scaled.Num(), scaled.Denom()).String()

	if decimals == 0 {
		return sign + digits
	}
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}
	return sign + digits[:len(digits)-decimals] + "." + digits[len(digits)-decimals:]
}

func StatusText(on bool) string {
	if on {
		return "Status: ON"
	}
	return "Status: OFF"
}

// TimerRunningText is empty when no countdown is active.
func TimerRunningText(timer int) string {
	if timer > 0 {
		return fmt.Sprintf("Timer Running: %d sec left", timer)
	}
	return ""
}

func TimerStartedText(seconds int) string {
	return fmt.Sprintf("Timer Started: %d sec", seconds)
}

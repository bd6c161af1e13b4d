package core

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlugId(t *testing.T) {
	id, err := ParsePlugId(url.Values{"plug": {"2"}})
	require.NoError(t, err)
	assert.Equal(t, PlugId(2), id)
	assert.Equal(t, "smart/plug/2/codedata", id.TelemetryTopic())

	_, err = ParsePlugId(url.Values{})
	assert.ErrorIs(t, err, ErrMissingPlugId)

	for _, raw := range []string{"abc", "2.5", "-1", "0x10", "99999999999"} {
		_, err = ParsePlugId(url.Values{"plug": {raw}})
		assert.ErrorIs(t, err, ErrInvalidPlugId, raw)
	}
}

func TestCommandPayloads(t *testing.T) {
	on, err := PowerCommand(7, true).Payload()
	require.NoError(t, err)
	assert.JSONEq(t, `{"plug":7,"cmd":"on"}`, string(on))

	off, err := PowerCommand(7, false).Payload()
	require.NoError(t, err)
	assert.JSONEq(t, `{"plug":7,"cmd":"off"}`, string(off))

	timer, err := TimerCommand(7, 3661).Payload()
	require.NoError(t, err)
	assert.JSONEq(t, `{"plug":7,"cmd":"timer","seconds":3661}`, string(timer))

	_, err = TimerCommand(7, 0).Payload()
	assert.Error(t, err)
	_, err = Command{Plug: 7, Kind: "reboot"}.Payload()
	assert.Error(t, err)
}

func TestDecodeCommand(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"plug":1,"cmd":"timer","seconds":90}`))
	require.NoError(t, err)
	assert.Equal(t, TimerCommand(1, 90), cmd)

	_, err = DecodeCommand([]byte(`{"plug":1,"cmd":"dance"}`))
	assert.Error(t, err)
}

func TestDecodeReadingMissingFieldsAreZero(t *testing.T) {
	r, err := DecodeReading([]byte(` {"voltage": 230.5} `))
	require.NoError(t, err)
	assert.Equal(t, 230.5, r.Voltage)
	assert.Zero(t, r.Current)
	assert.False(t, r.Relay.On())
	assert.Zero(t, r.Power())
}

func TestTimerSeconds(t *testing.T) {
	total, err := TimerSeconds(1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3661, total)

	total, err = TimerSeconds(0, 0, MaxTimerSeconds)
	require.NoError(t, err)
	assert.Equal(t, MaxTimerSeconds, total)

	total, err = TimerSeconds(0, -5, 0)
	require.NoError(t, err)
	assert.Zero(t, total)

	_, err = TimerSeconds(596524, 0, 0)
	assert.ErrorIs(t, err, ErrTimerTooLong)

	_, err = TimerCommand(1, MaxTimerSeconds+1).Payload()
	assert.ErrorIs(t, err, ErrTimerTooLong)
}

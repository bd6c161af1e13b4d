// Package sim simulates the firmware of a smart plug hub for local
// development without hardware.
package sim

import (
	"math/rand/v2"
	"sync"

	"github.com/ilievs/plugpanel/core"
)

// Plug is the state of one simulated plug. Methods are safe for concurrent
// use since commands and ticks arrive on different goroutines.
type Plug struct {
	id core.PlugId

	mu    sync.Mutex
	relay bool
	timer int
	rnd   *rand.Rand
}

func NewPlug(id core.PlugId, seed uint64) *Plug {
	return &Plug{
		id:  id,
		rnd: rand.New(rand.NewPCG(seed, uint64(id))),
	}
}

func (p *Plug) Id() core.PlugId {
	return p.id
}

// Apply executes a command addressed to this plug. Commands for other plugs
// are ignored and reported as not applied.
func (p *Plug) Apply(cmd core.Command) bool {
	if cmd.Plug != p.id || cmd.Validate() != nil {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch cmd.Kind {
	case core.CommandOn:
		p.relay = true
		p.timer = 0
	case core.CommandOff:
		p.relay = false
		p.timer = 0
	case core.CommandTimer:
		// the relay stays off while the countdown runs
		p.relay = false
		p.timer = cmd.Seconds
	}
	return true
}

// Tick advances the plug by one second and returns the reading to publish.
func (p *Plug) Tick() core.Reading {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timer > 0 {
		p.timer--
		if p.timer == 0 {
			p.relay = true
		}
	}

	reading := core.Reading{
		Voltage: 225 + p.rnd.Float64()*10,
		Relay:   core.Relay(p.relay),
		Timer:   p.timer,
	}
	if p.relay {
		reading.Current = 0.2 + p.rnd.Float64()*0.5
	}
	return reading
}

// Package netmon watches for network interface appear/disappear/up/down
// events via netlink, replacing ggaoed.c's bespoke RTM_NEWLINK/RTM_DELLINK
// raw-socket handling with github.com/vishvananda/netlink's subscription
// API.
package netmon

import (
	"github.com/vishvananda/netlink"

	"github.com/bysshe/cirrostratus/internal/interfaces"
)

// Event is a single interface presence/state change.
type Event struct {
	Name string
	Up   bool
	Gone bool // interface was deleted
}

// Monitor subscribes to link updates and forwards them as Events. The
// lifecycle manager drains Events() on each event-loop wake.
type Monitor struct {
	updates chan netlink.LinkUpdate
	done    chan struct{}
	events  chan Event
	logger  interfaces.Logger
}

// New opens a netlink link-update subscription.
func New(logger interfaces.Logger) (*Monitor, error) {
	updates := make(chan netlink.LinkUpdate)
	done := make(chan struct{})
	if err := netlink.LinkSubscribe(updates, done); err != nil {
		close(done)
		return nil, err
	}

	m := &Monitor{updates: updates, done: done, events: make(chan Event, 64), logger: logger}
	go m.pump()
	return m, nil
}

func (m *Monitor) pump() {
	for upd := range m.updates {
		name := upd.Link.Attrs().Name
		gone := upd.NlMsghdr.Type == unixRTMDelLink
		up := upd.Link.Attrs().Flags&netlinkFlagUp != 0
		select {
		case m.events <- Event{Name: name, Up: up, Gone: gone}:
		default:
			m.logger.Warnf("netmon: event queue full, dropping update for %s", name)
		}
	}
}

// Events returns the channel of interface presence/state changes. The
// event loop drains it without blocking after every epoll wake; an event
// does not itself wake the loop.
func (m *Monitor) Events() <-chan Event { return m.events }

// Close tears down the netlink subscription.
func (m *Monitor) Close() error {
	close(m.done)
	return nil
}

const (
	unixRTMDelLink  = 17 // RTM_DELLINK
	netlinkFlagUp   = 0x1
)

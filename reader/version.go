package reader

import (
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver"

	"cannode/canbus"
)

const (
	versionTimeout = 500 * time.Millisecond
	versionPoll    = 2 * time.Millisecond
)

// VersionGate asks the device on the bus for its firmware version before
// the reader settles into the ok state. The request is an empty frame on
// RequestID; the reply carries an ASCII version string on ReplyID
// (RequestID+1 when unset). A reply of "DEV" always passes.
type VersionGate struct {
	Constraint string
	RequestID  uint32
	ReplyID    uint32
	Timeout    time.Duration
}

func (g *VersionGate) Check(ch canbus.Channel) error {
	constraint, err := semver.NewConstraint(g.Constraint)
	if err != nil {
		return fmt.Errorf("bad version constraint %q: %w", g.Constraint, err)
	}

	replyID := g.ReplyID
	if replyID == 0 {
		replyID = g.RequestID + 1
	}
	timeout := g.Timeout
	if timeout == 0 {
		timeout = versionTimeout
	}

	if err := ch.Send(&canbus.Frame{ID: g.RequestID}); err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		f, err := ch.Read()
		if err != nil {
			if err == canbus.ERR_UNAVAILABLE {
				time.Sleep(versionPoll)
				continue
			}
			return err
		}
		if f.ID != replyID {
			continue
		}

		raw := strings.TrimRight(string(f.Data), "\x00")
		if raw == "DEV" {
			// direct dev build, considered safe
			return nil
		}

		v, err := semver.NewVersion(raw)
		if err != nil {
			return fmt.Errorf("unparseable firmware version %q", raw)
		}
		if !constraint.Check(v) {
			return fmt.Errorf("firmware %s does not satisfy %s", v, g.Constraint)
		}
		return nil
	}

	return fmt.Errorf("no version reply on 0x%X within %s", replyID, timeout)
}

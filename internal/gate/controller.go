package gate

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/banshee-data/plate.report/internal/anpr/pipeline"
	"github.com/banshee-data/plate.report/internal/timeutil"
)

// ControllerConfig tunes barrier behaviour.
type ControllerConfig struct {
	// OpenCooldown is the minimum delay between OPEN commands. Confirmed
	// readings inside the window still update the display but leave the
	// barrier alone.
	OpenCooldown time.Duration
}

// DefaultControllerConfig returns the controller defaults.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{OpenCooldown: 5 * time.Second}
}

// ControllerStats is a snapshot of the controller's counters.
type ControllerStats struct {
	// Displayed counts plates written to the annunciator display.
	Displayed uint64 `json:"displayed"`

	// Opened counts OPEN commands sent to the barrier.
	Opened uint64 `json:"opened"`

	// Denied counts confirmed readings not on the allowlist.
	Denied uint64 `json:"denied"`

	// Suppressed counts allowlisted readings skipped by the cooldown.
	Suppressed uint64 `json:"suppressed"`
}

// Controller consumes confirmed plate readings, shows each on the display,
// and opens the barrier for allowlisted plates. One controller owns the
// decision logic; the Link only moves bytes.
type Controller struct {
	link  LinkInterface
	allow *Allowlist
	cfg   ControllerConfig
	clock timeutil.Clock

	mu       sync.Mutex
	lastOpen time.Time
	stats    ControllerStats
}

// NewController returns a controller driving link from allow. A nil allow
// behaves as an empty allowlist (display only, never open). A nil clock uses
// the wall clock.
func NewController(link LinkInterface, allow *Allowlist, cfg ControllerConfig, clock timeutil.Clock) *Controller {
	if allow == nil {
		allow = NewAllowlist()
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if cfg.OpenCooldown <= 0 {
		cfg.OpenCooldown = DefaultControllerConfig().OpenCooldown
	}
	return &Controller{
		link:  link,
		allow: allow,
		cfg:   cfg,
		clock: clock,
	}
}

// Run consumes pipeline events until the channel closes or ctx is cancelled.
// Only reading and stopped events matter here; everything else on the bus is
// for other consumers.
func (c *Controller) Run(ctx context.Context, events <-chan pipeline.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			switch evt.Kind {
			case pipeline.EventReading:
				if evt.Reading != nil {
					c.HandleReading(evt.Reading.Text)
				}
			case pipeline.EventStopped:
				// Leave the display blank between sessions.
				if err := c.link.SendCommand("CLR"); err != nil {
					log.Printf("[gate] failed to clear display: %v", err)
				}
			}
		}
	}
}

// HandleReading shows the plate on the display and, when allowlisted and
// outside the cooldown window, opens the barrier.
func (c *Controller) HandleReading(plate string) {
	if err := c.link.SendCommand(fmt.Sprintf("MSG %s", plate)); err != nil {
		log.Printf("[gate] failed to display plate %s: %v", plate, err)
	} else {
		c.mu.Lock()
		c.stats.Displayed++
		c.mu.Unlock()
	}

	if !c.allow.Contains(plate) {
		c.mu.Lock()
		c.stats.Denied++
		c.mu.Unlock()
		return
	}

	// Claim the cooldown window before writing so two concurrent readings
	// cannot both open the barrier.
	now := c.clock.Now()
	c.mu.Lock()
	if !c.lastOpen.IsZero() && now.Sub(c.lastOpen) < c.cfg.OpenCooldown {
		c.stats.Suppressed++
		c.mu.Unlock()
		return
	}
	prevOpen := c.lastOpen
	c.lastOpen = now
	c.mu.Unlock()

	if err := c.link.SendCommand("OPEN"); err != nil {
		log.Printf("[gate] failed to open barrier for %s: %v", plate, err)
		// Release the claimed window so the next reading can retry.
		c.mu.Lock()
		c.lastOpen = prevOpen
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	c.stats.Opened++
	c.mu.Unlock()
	log.Printf("[gate] opened barrier for plate %s", plate)
}

// Stats returns a snapshot of the controller's counters.
func (c *Controller) Stats() ControllerStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

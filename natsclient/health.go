package natsclient

import (
	"time"

	"github.com/nats-io/nats.go"
)

// OnHealthChange registers a callback fired whenever the connection
// transitions between healthy and unhealthy.
func (c *Client) OnHealthChange(fn func(bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onHealthChange = fn
}

// handleDisconnect runs when nats.go loses the connection. Reconnection
// is left to the nats.go machinery; this only tracks state.
func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	c.setStatus(StatusReconnecting)
	if err != nil {
		c.logger.Warn("NATS connection lost", "error", err)
	}

	c.mu.RLock()
	onHealth := c.onHealthChange
	c.mu.RUnlock()

	if onHealth != nil {
		go onHealth(false)
	}
}

func (c *Client) handleReconnect(_ *nats.Conn) {
	c.setStatus(StatusConnected)
	c.resetCircuit()
	c.reconnects.Add(1)
	if c.coreMetrics != nil {
		c.coreMetrics.RecordNATSReconnect()
	}
	c.logger.Info("NATS reconnected", "url", c.url)

	c.mu.RLock()
	onHealth := c.onHealthChange
	c.mu.RUnlock()

	if onHealth != nil {
		go onHealth(true)
	}
}

func (c *Client) handleClosed(_ *nats.Conn) {
	c.setStatus(StatusDisconnected)

	c.mu.RLock()
	onHealth := c.onHealthChange
	c.mu.RUnlock()

	if onHealth != nil {
		go onHealth(false)
	}
}

// handleError sees subscription-level errors too, so it logs without
// recording a connection failure.
func (c *Client) handleError(_ *nats.Conn, sub *nats.Subscription, err error) {
	if sub != nil {
		c.logger.Error("NATS error", "subject", sub.Subject, "error", err)
		return
	}
	c.logger.Error("NATS error", "error", err)
}

// startHealthMonitoring launches the RTT probe loop. Any previous loop
// is stopped first.
func (c *Client) startHealthMonitoring() {
	c.stopHealthMonitoring()

	c.mu.Lock()
	c.healthTicker = time.NewTicker(c.healthInterval)
	c.healthDone = make(chan struct{})
	ticker, done := c.healthTicker, c.healthDone
	c.mu.Unlock()

	go c.healthLoop(ticker, done)
}

// healthLoop probes the connection on every tick and reports
// transitions through the health callback.
func (c *Client) healthLoop(ticker *time.Ticker, done chan struct{}) {
	defer ticker.Stop()

	lastHealthy := c.IsHealthy()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			healthy, ok := c.probe()
			if !ok {
				continue
			}

			c.mu.RLock()
			onHealth := c.onHealthChange
			c.mu.RUnlock()
			if healthy != lastHealthy && onHealth != nil {
				onHealth(healthy)
			}
			lastHealthy = healthy
		}
	}
}

// probe measures RTT on the live connection and folds the result into
// the connection status. The second return is false when there is no
// connection to probe.
func (c *Client) probe() (healthy, ok bool) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return false, false
	}

	healthy = conn.IsConnected()
	if rtt, err := conn.RTT(); err != nil {
		healthy = false
	} else if c.coreMetrics != nil {
		c.coreMetrics.RecordNATSRTT(rtt)
	}

	switch {
	case healthy && c.Status() != StatusConnected:
		c.setStatus(StatusConnected)
	case !healthy && c.Status() == StatusConnected:
		c.setStatus(StatusReconnecting)
	}

	return healthy, true
}

// stopHealthMonitoring tears down the probe loop if one is running.
func (c *Client) stopHealthMonitoring() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.healthTicker != nil {
		c.healthTicker.Stop()
		c.healthTicker = nil
	}
	if c.healthDone != nil {
		close(c.healthDone)
		c.healthDone = nil
	}
}

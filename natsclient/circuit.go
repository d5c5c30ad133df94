package natsclient

import "time"

// The circuit breaker sits in front of Connect. Failures within one
// round accumulate until circuitThreshold opens the circuit; Connect
// then fails fast with ErrCircuitOpen until the backoff elapses and
// testCircuit lets attempts through again. Each unsuccessful round
// doubles the backoff up to maxBackoff.

// recordFailure counts one connection failure and opens the circuit
// once the threshold for the current round is reached.
func (c *Client) recordFailure() {
	total := c.failures.Add(1)
	c.lastFailure.Store(time.Now())

	round := c.roundFailures.Add(1)
	c.logger.Debug("connection failure recorded", "total", total, "round", round)
	if round < c.circuitThreshold {
		return
	}

	current := c.Status()
	if current == StatusCircuitOpen {
		// Still failing while open, widen the next wait.
		c.roundFailures.Store(0)
		c.logger.Warn("circuit still open", "backoff", c.widenBackoff())
		return
	}

	// Only one goroutine wins the transition to open.
	if c.status.CompareAndSwap(current, StatusCircuitOpen) {
		if c.coreMetrics != nil {
			c.coreMetrics.RecordNATSStatus(false)
		}

		wait := c.Backoff()
		c.widenBackoff()
		c.roundFailures.Store(0)

		c.logger.Warn("circuit breaker opened", "failures", round, "retry_in", wait)
		time.AfterFunc(wait, c.testCircuit)
	}
}

// widenBackoff doubles the stored backoff up to maxBackoff and returns
// the new value.
func (c *Client) widenBackoff() time.Duration {
	next := c.Backoff() * 2
	if next > c.maxBackoff {
		next = c.maxBackoff
	}
	c.backoff.Store(next)
	return next
}

// resetCircuit clears the failure history after a successful connect.
func (c *Client) resetCircuit() {
	c.failures.Store(0)
	c.roundFailures.Store(0)
	c.backoff.Store(time.Second)
	c.lastFailure.Store(time.Time{})

	if c.Status() == StatusCircuitOpen {
		c.setStatus(StatusDisconnected)
	}
}

// testCircuit half-opens the breaker after the backoff elapsed so the
// next Connect can probe the server.
func (c *Client) testCircuit() {
	if c.Status() == StatusCircuitOpen {
		c.logger.Debug("circuit backoff elapsed, allowing connection attempts")
		c.setStatus(StatusDisconnected)
	}
}

// Package feed provides the NATS input component for readout data.
//
// # Overview
//
// The readout feed subscribes to a NATS subject carrying binary readout
// frames, decodes each frame into a stream.ReadoutEvent and delivers it
// to the stream worker's event channel. A bounded drop-oldest buffer
// sits between the NATS callback and the worker, so a paused or slow
// worker costs the oldest events instead of blocking the subscription.
//
// # Wire Format
//
// A readout frame is a sequence of little-endian uint32 words:
//
//	magic        0x31454D56 ("VME1")
//	event index  which VME event triggered the readout
//	module count number of module blocks that follow
//	-- per module --
//	word count   number of data words for this module
//	words        raw readout words
//
// Module blocks are positional: a module that produced no data still
// contributes a header with word count zero, so module index N on the
// wire is module index N in the event.
//
// # Flow
//
//	NATS Subject → DecodeFrame → Buffer → Pump Goroutine → Worker Channel
//	                                ↓
//	                        Drop Oldest (if buffer full)
//
// The subscription is established with persistent retries in the
// background. Start succeeds while NATS is still connecting; Health
// reports the feed unhealthy until the subscription is live. With a
// queue group configured, multiple feed instances share one readout
// stream.
package feed

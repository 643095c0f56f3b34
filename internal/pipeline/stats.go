package pipeline

import "time"

// Stats is a point-in-time snapshot of pipeline counters. Safe to call from
// any goroutine; counters are read atomically and the buffer takes its own
// lock for its portion.
type Stats struct {
	EventsIngested  uint64  `json:"events_ingested"`
	EventsDiscarded uint64  `json:"events_discarded"`
	EventsEvicted   uint64  `json:"events_evicted"`
	BufferLen       int     `json:"buffer_len"`
	BufferCap       int     `json:"buffer_cap"`
	FramesEmitted   uint64  `json:"frames_emitted"`
	TicksIdle       uint64  `json:"ticks_idle"`
	SinkErrors      uint64  `json:"sink_errors"`
	StreamEnded     bool    `json:"stream_ended"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
	ActualFPS       float64 `json:"actual_fps"`
}

// Stats returns the current counter snapshot.
func (p *Pipeline) Stats() Stats {
	bs := p.buf.Stats()

	p.startedMu.Lock()
	startTime := p.startTime
	p.startedMu.Unlock()

	var uptime float64
	if !startTime.IsZero() {
		uptime = time.Since(startTime).Seconds()
	}

	frames := p.framesEmitted.Load()
	var fps float64
	if uptime > 0 {
		fps = float64(frames) / uptime
	}

	return Stats{
		EventsIngested:  p.eventsIngested.Load(),
		EventsDiscarded: p.eventsDiscarded.Load(),
		EventsEvicted:   bs.Evicted,
		BufferLen:       bs.Len,
		BufferCap:       bs.Cap,
		FramesEmitted:   frames,
		TicksIdle:       p.ticksIdle.Load(),
		SinkErrors:      p.sinkErrors.Load(),
		StreamEnded:     p.streamEnded.Load(),
		UptimeSeconds:   uptime,
		ActualFPS:       fps,
	}
}

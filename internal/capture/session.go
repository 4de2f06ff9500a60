package capture

import (
	"encoding/binary"

	"firestige.xyz/satcam/internal/tick"
)

// StageTiming is the tick at which an image pipeline stage finished.
type StageTiming struct {
	Name string
	Tick tick.Tick
}

// Session is one capture, from the starting report to the done report.
type Session struct {
	Seq        uint64
	Forced     bool
	StartTick  tick.Tick
	StopTick   tick.Tick
	Stages     []StageTiming
	Output     []byte
	OutputSize int
	Filler     int
	Err        error
}

// stageRecorder stamps stage completions with the current tick.
type stageRecorder struct {
	ticks *tick.Source
	s     *Session
}

func (r stageRecorder) Mark(stage string) {
	r.s.Stages = append(r.s.Stages, StageTiming{Name: stage, Tick: r.ticks.Now()})
}

// stageMillis returns the duration of each stage in milliseconds, the first
// measured from the start tick.
func (s *Session) stageMillis(ticks *tick.Source) []int64 {
	out := make([]int64, len(s.Stages))
	prev := s.StartTick
	for i, st := range s.Stages {
		out[i] = ticks.Millis(st.Tick.Sub(prev))
		prev = st.Tick
	}
	return out
}

// donePayload encodes the report that follows the done code:
// elapsed ms (u32), output size (u32), stage count (u8), stage ms (u32 each).
func (s *Session) donePayload(ticks *tick.Source) []byte {
	stages := s.stageMillis(ticks)
	b := make([]byte, 0, 9+4*len(stages))
	b = binary.BigEndian.AppendUint32(b, clampU32(ticks.Millis(s.StopTick.Sub(s.StartTick))))
	b = binary.BigEndian.AppendUint32(b, clampU32(int64(s.OutputSize)))
	b = append(b, byte(len(stages)))
	for _, ms := range stages {
		b = binary.BigEndian.AppendUint32(b, clampU32(ms))
	}
	return b
}

// degradedPayload encodes elapsed ms (u32) and stages reached (u8).
func (s *Session) degradedPayload(ticks *tick.Source) []byte {
	b := binary.BigEndian.AppendUint32(nil, clampU32(ticks.Millis(s.StopTick.Sub(s.StartTick))))
	return append(b, byte(len(s.Stages)))
}

func clampU32(v int64) uint32 {
	switch {
	case v < 0:
		return 0
	case v > 0xFFFFFFFF:
		return 0xFFFFFFFF
	default:
		return uint32(v)
	}
}

// Summary is the exported view of the last finished session.
type Summary struct {
	Seq        uint64           `json:"seq"`
	Forced     bool             `json:"forced"`
	Degraded   bool             `json:"degraded"`
	Error      string           `json:"error,omitempty"`
	ElapsedMs  int64            `json:"elapsed_ms"`
	OutputSize int              `json:"output_size"`
	Filler     int              `json:"filler_bits"`
	StageMs    map[string]int64 `json:"stage_ms,omitempty"`
	Path       string           `json:"path,omitempty"`
}

func (s *Session) summary(ticks *tick.Source, path string) *Summary {
	sum := &Summary{
		Seq:        s.Seq,
		Forced:     s.Forced,
		Degraded:   s.Err != nil,
		ElapsedMs:  ticks.Millis(s.StopTick.Sub(s.StartTick)),
		OutputSize: s.OutputSize,
		Filler:     s.Filler,
		Path:       path,
	}
	if s.Err != nil {
		sum.Error = s.Err.Error()
	}
	if len(s.Stages) > 0 {
		sum.StageMs = make(map[string]int64, len(s.Stages))
		for i, ms := range s.stageMillis(ticks) {
			sum.StageMs[s.Stages[i].Name] = ms
		}
	}
	return sum
}

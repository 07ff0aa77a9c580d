package engine

import (
	"sync/atomic"

	"llmhost/pkg/types"
)

// nativeRelay routes log lines emitted by the native library to the sink of
// the most recently configured engine. The native callback is process-wide,
// so there is one relay per process.
type nativeRelay struct {
	sink atomic.Pointer[LogSink]
}

var native nativeRelay

func (r *nativeRelay) set(sink LogSink) {
	if sink == nil {
		r.sink.Store(nil)
		return
	}
	r.sink.Store(&sink)
}

// emit forwards one native line. level uses the ggml numbering.
func (r *nativeRelay) emit(level int32, text string) {
	p := r.sink.Load()
	if p == nil || text == "" {
		return
	}
	(*p)(nativeLevel(level), text)
}

// nativeLevel maps a ggml level onto types.LogLevel. Unknown levels are
// treated as informational.
func nativeLevel(level int32) types.LogLevel {
	l := types.LogLevel(level)
	if l < types.LogNone || l > types.LogCont {
		return types.LogInfo
	}
	return l
}

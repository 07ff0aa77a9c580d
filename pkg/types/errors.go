package types

// ErrorKind classifies failures surfaced by the runtime.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidArgument
	KindModelLoadFailure
	KindContextCreateFailure
	KindTokenizeFailure
	KindDecodeFailure
	KindTokenConversionFailure
	KindUnknownTokenName
	KindInvalidHandle
	// KindDependencyUnavailable means no inference engine was compiled in.
	KindDependencyUnavailable
	// KindUnavailable means the task scheduler rejected the work.
	KindUnavailable
)

var kindNames = map[ErrorKind]string{
	KindUnknown:                "unknown",
	KindInvalidArgument:        "invalid argument",
	KindModelLoadFailure:       "model load failure",
	KindContextCreateFailure:   "context create failure",
	KindTokenizeFailure:        "tokenize failure",
	KindDecodeFailure:          "decode failure",
	KindTokenConversionFailure: "token conversion failure",
	KindUnknownTokenName:       "unknown token name",
	KindInvalidHandle:          "invalid handle",
	KindDependencyUnavailable:  "dependency unavailable",
	KindUnavailable:            "unavailable",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

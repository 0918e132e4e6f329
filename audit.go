package authcore

import (
	"io"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/sirupsen/logrus"
)

// NoOpSink discards audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink delivers audit events into a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per event and line.
type JSONWriterSink = internalaudit.JSONWriterSink

// LogrusSink logs audit events as structured logrus entries.
type LogrusSink = internalaudit.LogrusSink

// NewChannelSink creates a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a sink writing JSON lines to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewLogrusSink creates a sink logging through logger. A nil logger uses the
// logrus standard logger.
func NewLogrusSink(logger logrus.FieldLogger) *LogrusSink {
	return internalaudit.NewLogrusSink(logger)
}

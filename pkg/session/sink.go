package session

import "github.com/cbodonnell/gridlock/pkg/log"

// ChannelSink buffers reported notices on a channel for a presentation
// layer to drain. Reports never block; when the buffer is full the
// oldest unread notice wins and the new one is dropped with a warning.
type ChannelSink struct {
	notices chan string
}

func NewChannelSink(size int) *ChannelSink {
	return &ChannelSink{
		notices: make(chan string, size),
	}
}

func (s *ChannelSink) Report(message string) {
	select {
	case s.notices <- message:
	default:
		log.Warn("Dropping notice, sink buffer full: %s", message)
	}
}

func (s *ChannelSink) Notices() <-chan string {
	return s.notices
}

// LogSink reports notices to the default logger, for headless use.
type LogSink struct {
}

func (s *LogSink) Report(message string) {
	log.Warn("%s", message)
}

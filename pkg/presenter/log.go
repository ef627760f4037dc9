package presenter

import (
	"log"
	"net"
	"strings"
)

// Log reports dial progress through a log.Logger. The connection goes to
// OnConnected; without one it is closed.
type Log struct {
	Logger      *log.Logger
	OnConnected func(conn net.Conn)
	OnFailed    func()
}

func (l *Log) printf(format string, args ...interface{}) {
	if l.Logger != nil {
		l.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (l *Log) ShowMessage(text string) {
	l.printf("status: %s", text)
}

func (l *Log) ShowConnectionErrorDialog(text string) {
	l.printf("error: %s", strings.ReplaceAll(text, "\n", " "))
}

func (l *Log) ClearMessage() {}

func (l *Log) SuccessfulConnection(conn net.Conn) {
	l.printf("connected to %s", conn.RemoteAddr())
	if l.OnConnected != nil {
		l.OnConnected(conn)
		return
	}
	_ = conn.Close()
}

func (l *Log) ConnectionFailed() {
	l.printf("connection failed")
	if l.OnFailed != nil {
		l.OnFailed()
	}
}

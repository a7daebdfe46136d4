package jsonrpc

import "time"

// NewRequestListener is notified of every request a transport reads.
type NewRequestListener interface {
	OnNewRequest(method string)
}

// EventListener follows a request through the server. A timed out request is reported
// to both OnRequestTimedOut and OnRequestFailed.
type EventListener interface {
	NewRequestListener
	OnRequestHandled(method string, took time.Duration)
	OnRequestFailed(method string, data any)
	OnRequestTimedOut(method string)
}

type SelectiveListener struct {
	OnNewRequestCb      func(method string)
	OnRequestHandledCb  func(method string, took time.Duration)
	OnRequestFailedCb   func(method string, data any)
	OnRequestTimedOutCb func(method string)
}

func (l *SelectiveListener) OnNewRequest(method string) {
	if l.OnNewRequestCb != nil {
		l.OnNewRequestCb(method)
	}
}

func (l *SelectiveListener) OnRequestHandled(method string, took time.Duration) {
	if l.OnRequestHandledCb != nil {
		l.OnRequestHandledCb(method, took)
	}
}

func (l *SelectiveListener) OnRequestFailed(method string, data any) {
	if l.OnRequestFailedCb != nil {
		l.OnRequestFailedCb(method, data)
	}
}

func (l *SelectiveListener) OnRequestTimedOut(method string) {
	if l.OnRequestTimedOutCb != nil {
		l.OnRequestTimedOutCb(method)
	}
}

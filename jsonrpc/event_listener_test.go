package jsonrpc_test

import (
	"sync"
	"time"
)

type CountingEventListener struct {
	mu                    sync.Mutex
	OnNewRequestLogs      []string
	OnRequestHandledCalls []struct {
		method string
		took   time.Duration
	}
	OnRequestFailedCalls []struct {
		method string
		data   any
	}
	OnRequestTimedOutLogs []string
}

func (l *CountingEventListener) OnNewRequest(method string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.OnNewRequestLogs = append(l.OnNewRequestLogs, method)
}

func (l *CountingEventListener) OnRequestHandled(method string, took time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.OnRequestHandledCalls = append(l.OnRequestHandledCalls, struct {
		method string
		took   time.Duration
	}{
		method: method,
		took:   took,
	})
}

func (l *CountingEventListener) OnRequestFailed(method string, data any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.OnRequestFailedCalls = append(l.OnRequestFailedCalls, struct {
		method string
		data   any
	}{
		method: method,
		data:   data,
	})
}

func (l *CountingEventListener) OnRequestTimedOut(method string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.OnRequestTimedOutLogs = append(l.OnRequestTimedOutLogs, method)
}

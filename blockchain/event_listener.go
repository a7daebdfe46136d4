package blockchain

import "time"

// EventListener observes reads served by the chain and blocks committed to it.
type EventListener interface {
	OnRead(method string)
	OnStored(number uint64, took time.Duration)
}

type SelectiveListener struct {
	OnReadCb   func(method string)
	OnStoredCb func(number uint64, took time.Duration)
}

func (l *SelectiveListener) OnRead(method string) {
	if l.OnReadCb != nil {
		l.OnReadCb(method)
	}
}

func (l *SelectiveListener) OnStored(number uint64, took time.Duration) {
	if l.OnStoredCb != nil {
		l.OnStoredCb(number, took)
	}
}

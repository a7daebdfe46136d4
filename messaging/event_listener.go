package messaging

type EventListener interface {
	OnMessage()
	OnPollFailed()
}

type SelectiveListener struct {
	OnMessageCb    func()
	OnPollFailedCb func()
}

func (l *SelectiveListener) OnMessage() {
	if l.OnMessageCb != nil {
		l.OnMessageCb()
	}
}

func (l *SelectiveListener) OnPollFailed() {
	if l.OnPollFailedCb != nil {
		l.OnPollFailedCb()
	}
}

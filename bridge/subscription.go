package bridge

import "sync"

// Subscription stops the delivery of messages to one handler.
type Subscription interface {
	Unsubscribe()
}

// subscription runs remove once, however often Unsubscribe is called.
type subscription struct {
	once   sync.Once
	remove func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.remove)
}

package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishToEffortSubscriber(t *testing.T) {
	p := NewMemoryPublisher()
	defer p.Close()

	ch := p.Subscribe("api-rewrite")
	p.Publish(New(TypeTaskAdded, "api-rewrite", TaskChange{TaskID: "x7k2mq"}))

	e := recv(t, ch)
	assert.Equal(t, TypeTaskAdded, e.Type)
	assert.Equal(t, "api-rewrite", e.Effort)
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Time.IsZero())
}

func TestGlobalSubscriberSeesEverything(t *testing.T) {
	p := NewMemoryPublisher()
	defer p.Close()

	global := p.Subscribe(GlobalEffort)
	p.Publish(New(TypeFileChanged, "one", nil))
	p.Publish(New(TypeFileChanged, "two", nil))

	assert.Equal(t, "one", recv(t, global).Effort)
	assert.Equal(t, "two", recv(t, global).Effort)
}

func TestPublishDoesNotReachOtherEfforts(t *testing.T) {
	p := NewMemoryPublisher()
	defer p.Close()

	ch := p.Subscribe("other")
	p.Publish(New(TypeTaskUpdated, "mine", nil))

	select {
	case e := <-ch:
		t.Fatalf("unexpected event: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishNonBlockingWhenBufferFull(t *testing.T) {
	p := NewMemoryPublisher(WithBufferSize(1))
	defer p.Close()

	ch := p.Subscribe("e")
	p.Publish(New(TypeTaskUpdated, "e", nil))
	// Buffer is full; this must not block.
	done := make(chan struct{})
	go func() {
		p.Publish(New(TypeTaskUpdated, "e", nil))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on full subscriber")
	}
	recv(t, ch)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	p := NewMemoryPublisher()
	defer p.Close()

	ch := p.Subscribe("e")
	p.Unsubscribe("e", ch)

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe is a no-op.
	p.Publish(New(TypeTaskUpdated, "e", nil))
}

func TestCloseClosesAllSubscribers(t *testing.T) {
	p := NewMemoryPublisher()
	a := p.Subscribe("a")
	b := p.Subscribe(GlobalEffort)
	p.Close()

	_, open := <-a
	require.False(t, open)
	_, open = <-b
	require.False(t, open)

	// Subscribe after close yields a closed channel.
	_, open = <-p.Subscribe("late")
	assert.False(t, open)
}

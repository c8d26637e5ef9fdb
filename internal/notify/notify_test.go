package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	fail   bool
	block  chan struct{}
	closed bool
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Send(ctx context.Context, ev Event) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("boom")
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(8, nil, sink)

	require.True(t, d.Publish(Event{Type: NoticeImportant, EntityID: "n_1"}))
	require.True(t, d.Publish(Event{Type: ReportReplied, EntityID: "r_1"}))

	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, []string{NoticeImportant, ReportReplied}, sink.types())
	assert.True(t, sink.closed)

	st := d.Stats()
	assert.EqualValues(t, 2, st.Published)
	assert.EqualValues(t, 2, st.Delivered)
	assert.False(t, sink.events[0].At.IsZero(), "At is stamped on publish")
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(1, nil, sink)

	// The first event is taken by the worker and blocks in Send; the second
	// fills the queue.
	require.True(t, d.Publish(Event{Type: "a"}))
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, 5*time.Millisecond)
	require.True(t, d.Publish(Event{Type: "b"}))
	assert.False(t, d.Publish(Event{Type: "c"}))
	assert.EqualValues(t, 1, d.Stats().Dropped)

	close(sink.block)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, []string{"a", "b"}, sink.types())
}

func TestDispatcherCountsFailures(t *testing.T) {
	good := &recordingSink{}
	bad := &recordingSink{fail: true}
	d := NewDispatcher(4, nil, bad, good)
	d.Publish(Event{Type: VacationRequested})
	require.NoError(t, d.Close(context.Background()))

	st := d.Stats()
	assert.EqualValues(t, 1, st.Failed)
	assert.EqualValues(t, 1, st.Delivered)
	assert.Equal(t, []string{VacationRequested}, good.types())
}

func TestDispatcherClosed(t *testing.T) {
	d := NewDispatcher(4, nil)
	require.NoError(t, d.Close(context.Background()))
	assert.False(t, d.Publish(Event{Type: "late"}))
	assert.ErrorIs(t, d.Close(context.Background()), ErrClosed)
}

func TestDispatcherCloseTimeout(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(4, nil, sink)
	d.Publish(Event{Type: "stuck"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)

	close(sink.block)
	<-d.done
}

func TestNATSSubject(t *testing.T) {
	s := newNATSSink(nil, "team.portal.")
	assert.Equal(t, "team.portal.report.replied", s.Subject(ReportReplied))
	assert.Equal(t, "fitlib.notice.important", newNATSSink(nil, "").Subject(NoticeImportant))
}

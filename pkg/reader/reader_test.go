package reader

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheEntropyCollective/logtree/pkg/event"
	"github.com/TheEntropyCollective/logtree/pkg/logging"
	"github.com/TheEntropyCollective/logtree/pkg/sink"
)

type memorySink struct {
	mu     sync.Mutex
	events []event.Event
}

func (m *memorySink) Consume(ev event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *memorySink) snapshot() []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]event.Event(nil), m.events...)
}

type memoryFactory struct {
	mu      sync.Mutex
	sinks   []*memorySink
	updates int
}

func (f *memoryFactory) MakeStream() sink.Sink {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &memorySink{}
	f.sinks = append(f.sinks, s)
	return s
}

func (f *memoryFactory) Update() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
}

func (f *memoryFactory) Close() error { return nil }

const sampleStream = `{"_":{"t":"begin"}}` +
	`{"_":{"t":"m","lvl":"info","src":"App","f":"hello","ts":0.1}}` +
	`{"_":{"t":"end","ts":0.2,"clean":true}}`

func TestReaderCleanEOF(t *testing.T) {
	f := &memoryFactory{}
	r := New(strings.NewReader(sampleStream), f, logging.Discard())

	assert.True(t, r.Run())
	require.Len(t, f.sinks, 1)
	events := f.sinks[0].snapshot()
	require.Len(t, events, 3)
	_, ok := events[2].(*event.FinishInfo)
	assert.True(t, ok)
	assert.Greater(t, f.updates, 0, "the factory is ticked while pumping")
	assert.Equal(t, uint64(3), r.Stats().Records)
}

type failingReader struct {
	data string
	done bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.done {
		r.done = true
		n := copy(p, r.data)
		return n, nil
	}
	return 0, errors.New("connection reset")
}

func TestReaderSourceFailure(t *testing.T) {
	f := &memoryFactory{}
	input := `{"_":{"t":"begin"}}{"_":{"t":"m","src":"App","f":"x","ts":1}}`
	r := New(&failingReader{data: input}, f, logging.Discard())

	assert.False(t, r.Run())
	events := f.sinks[0].snapshot()
	require.NotEmpty(t, events)
	fin, ok := events[len(events)-1].(*event.FinishInfo)
	require.True(t, ok, "an aborted stream receives a synthetic finish")
	assert.False(t, fin.Clean)
}

func TestReaderImplicitBegin(t *testing.T) {
	f := &memoryFactory{}
	input := `{"_":{"t":"m","src":"App","f":"no begin","ts":1}}`
	r := New(strings.NewReader(input), f, logging.Discard())

	assert.True(t, r.Run())
	events := f.sinks[0].snapshot()
	require.Len(t, events, 3)
	_, ok := events[0].(*event.BeginInfo)
	assert.True(t, ok, "missing begin is synthesized")
	_, ok = events[2].(*event.FinishInfo)
	assert.True(t, ok, "EOF without finish synthesizes an unclean one")
}

func TestServerServesConcurrentProducers(t *testing.T) {
	f := &memoryFactory{}
	srv := NewServer(sink.NewLocked(f), logging.Discard())
	require.NoError(t, srv.Listen("127.0.0.1:0"))

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()

	addr := srv.Addr().String()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				t.Error(err)
				return
			}
			conn.Write([]byte(sampleStream))
			conn.Close()
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return srv.Stats().Records == 9
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-served)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Len(t, f.sinks, 3, "every connection gets its own stream")
	stats := srv.Stats()
	assert.Equal(t, uint64(3), stats.TotalConns)
	assert.Equal(t, uint64(0), stats.ActiveConns)
}

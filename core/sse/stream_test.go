package sse

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRender(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{
			"data only",
			Event{Data: "hello"},
			"data: hello\n\n",
		},
		{
			"full event",
			Event{ID: "7", Name: "update", Data: "payload", Retry: 3000},
			"id: 7\nevent: update\nretry: 3000\ndata: payload\n\n",
		},
		{
			"multiline data",
			Event{Data: "line one\nline two"},
			"data: line one\ndata: line two\n\n",
		},
		{
			"empty data",
			Event{Name: "ping", Data: ""},
			"event: ping\ndata: \n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(tt.event.Render()))
		})
	}
}

func TestStreamReadsQueuedEvents(t *testing.T) {
	stream := NewStream(4)
	require.True(t, stream.Send(&Event{Data: "first"}))
	require.True(t, stream.Send(&Event{Data: "second"}))
	stream.Close()

	out, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "data: first\n\ndata: second\n\n", string(out))
}

func TestStreamPartialReads(t *testing.T) {
	stream := NewStream(1)
	stream.Send(&Event{Data: "chunked"})
	stream.Close()

	buf := make([]byte, 4)
	var got []byte
	for {
		n, err := stream.Read(buf)
		got = append(got, buf[:n]...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, "data: chunked\n\n", string(got))
}

func TestStreamDropsWhenFull(t *testing.T) {
	stream := NewStream(1)
	assert.True(t, stream.Send(&Event{Data: "kept"}))
	assert.False(t, stream.Send(&Event{Data: "dropped"}))
}

func TestStreamSendAfterClose(t *testing.T) {
	stream := NewStream(1)
	stream.Close()
	stream.Close()

	assert.False(t, stream.Send(&Event{Data: "late"}))
}

func TestBrokerFanOut(t *testing.T) {
	broker := NewBroker(10)
	a := broker.Subscribe("a", 4)
	b := broker.Subscribe("b", 4)
	require.NotNil(t, a)
	require.NotNil(t, b)

	broker.Publish(&Event{Data: "news"})
	broker.Unsubscribe("a")
	broker.Unsubscribe("b")

	for _, stream := range []*Stream{a, b} {
		out, err := io.ReadAll(stream)
		require.NoError(t, err)
		assert.Equal(t, "data: news\n\n", string(out))
	}

	published, dropped := broker.Stats()
	assert.Equal(t, uint64(1), published)
	assert.Equal(t, uint64(0), dropped)
}

func TestBrokerRejectsDuplicateAndOverflow(t *testing.T) {
	broker := NewBroker(1)
	require.NotNil(t, broker.Subscribe("only", 1))

	assert.Nil(t, broker.Subscribe("only", 1), "duplicate id")
	assert.Nil(t, broker.Subscribe("other", 1), "at capacity")
	assert.Equal(t, 1, broker.SubscriberCount())
}

func TestBrokerCountsDrops(t *testing.T) {
	broker := NewBroker(10)
	broker.Subscribe("slow", 1)

	broker.Publish(&Event{Data: "fits"})
	broker.Publish(&Event{Data: "overflows"})

	_, dropped := broker.Stats()
	assert.Equal(t, uint64(1), dropped)
}

package intake

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heyjunin/vodforge/pkg/errors"
)

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"asset_id":"a1","input_ref":"s3://b/k.mp4"}`, false},
		{"malformed json", `{asset`, true},
		{"missing asset id", `{"input_ref":"s3://b/k.mp4"}`, true},
		{"missing input ref", `{"asset_id":"a1"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := decodeMessage([]byte(tt.payload))
			if tt.wantErr {
				require.Error(t, err)
				structErr, ok := err.(*errors.StructuredError)
				require.True(t, ok, "expected a structured error")
				assert.Equal(t, errors.QueueError, structErr.Type)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "a1", m.AssetID)
			assert.Equal(t, "s3://b/k.mp4", m.InputRef)
		})
	}
}

func TestCommitterReleasesContiguousPrefix(t *testing.T) {
	c := newCommitter()
	msgs := []kafka.Message{
		{Partition: 0, Offset: 0},
		{Partition: 0, Offset: 1},
		{Partition: 0, Offset: 2},
	}
	for _, m := range msgs {
		c.track(m)
	}

	if got := c.finish(msgs[1]); got != nil {
		t.Fatalf("offset 1 finished before 0 released offset %d, want none", got.Offset)
	}
	got := c.finish(msgs[0])
	if got == nil || got.Offset != 1 {
		t.Fatalf("finishing offset 0 should release through offset 1, got %v", got)
	}
	got = c.finish(msgs[2])
	if got == nil || got.Offset != 2 {
		t.Fatalf("finishing offset 2 should release it, got %v", got)
	}
}

func TestCommitterPartitionsIndependent(t *testing.T) {
	c := newCommitter()
	p0 := kafka.Message{Partition: 0, Offset: 5}
	p1 := kafka.Message{Partition: 1, Offset: 3}
	c.track(p0)
	c.track(p1)

	got := c.finish(p1)
	if got == nil || got.Partition != 1 || got.Offset != 3 {
		t.Fatalf("partition 1 should commit independently, got %v", got)
	}
	got = c.finish(p0)
	if got == nil || got.Partition != 0 || got.Offset != 5 {
		t.Fatalf("partition 0 should commit independently, got %v", got)
	}
}

func TestCommitterRedeliveredBelowWindow(t *testing.T) {
	c := newCommitter()
	first := kafka.Message{Partition: 0, Offset: 7}
	c.track(first)
	if got := c.finish(first); got == nil || got.Offset != 7 {
		t.Fatalf("offset 7 should commit, got %v", got)
	}

	// After a rebalance the group may hand the partition back at an older
	// offset; the window has to follow it down or nothing commits again.
	redelivered := kafka.Message{Partition: 0, Offset: 5}
	c.track(redelivered)
	if got := c.finish(redelivered); got == nil || got.Offset != 5 {
		t.Fatalf("redelivered offset 5 should commit, got %v", got)
	}
}

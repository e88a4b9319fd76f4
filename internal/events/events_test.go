package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	published []published
	err       error
	flushed   bool
	drained   bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, published{subject: subject, data: data})
	return nil
}

func (f *fakeConn) FlushWithContext(context.Context) error {
	f.flushed = true
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func TestNATSPublisher_Publish(t *testing.T) {
	fc := &fakeConn{}
	at := time.Date(2025, time.March, 8, 12, 0, 0, 0, time.UTC)
	p := newPublisher(fc, WithClock(func() time.Time { return at }))

	err := p.Publish(context.Background(), "message.sent", map[string]string{"messageId": "m-1"})
	require.NoError(t, err)
	require.Len(t, fc.published, 1)
	assert.Equal(t, "saturday.message.sent", fc.published[0].subject)

	var env Envelope
	require.NoError(t, json.Unmarshal(fc.published[0].data, &env))
	assert.Equal(t, "saturday.message.sent", env.Subject)
	assert.True(t, env.PublishedAt.Equal(at))
	assert.JSONEq(t, `{"messageId":"m-1"}`, string(env.Data))
}

func TestNATSPublisher_SubjectPrefix(t *testing.T) {
	p := newPublisher(&fakeConn{}, WithSubjectPrefix("campus"))
	assert.Equal(t, "campus.pregame.updated", p.Subject("pregame.updated"))
}

func TestNATSPublisher_Errors(t *testing.T) {
	t.Run("connection failure is wrapped", func(t *testing.T) {
		boom := errors.New("boom")
		p := newPublisher(&fakeConn{err: boom})
		err := p.Publish(context.Background(), "rating.created", struct{}{})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("unencodable payload", func(t *testing.T) {
		fc := &fakeConn{}
		p := newPublisher(fc)
		err := p.Publish(context.Background(), "rating.created", make(chan int))
		assert.Error(t, err)
		assert.Empty(t, fc.published)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := newPublisher(&fakeConn{}).Publish(ctx, "message.sent", struct{}{})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("closed publisher", func(t *testing.T) {
		fc := &fakeConn{}
		p := newPublisher(fc)
		require.NoError(t, p.Close(context.Background()))
		require.NoError(t, p.Close(context.Background()))
		assert.True(t, fc.flushed)
		assert.True(t, fc.drained)
		assert.ErrorIs(t, p.Publish(context.Background(), "message.sent", struct{}{}), ErrClosed)
	})
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), "anything", nil))
}

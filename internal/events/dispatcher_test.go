package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishRunsTypedAndWildcardHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var typed, all int
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error { typed++; return nil })
	d.SubscribeAll(func(context.Context, Event) error { all++; return nil })

	assert.NoError(t, d.Publish(context.Background(), New(EventTicketCreated, "t1", "u1", time.Now(), nil)))
	assert.NoError(t, d.Publish(context.Background(), New(EventClientChanged, "", "u1", time.Now(), nil)))

	assert.Equal(t, 1, typed)
	assert.Equal(t, 2, all)
}

func TestPublishContinuesAfterHandlerFailure(t *testing.T) {
	d := NewInMemoryDispatcher()
	boom := errors.New("boom")
	called := false
	d.Subscribe(EventUpdateAppended, func(context.Context, Event) error { return boom })
	d.Subscribe(EventUpdateAppended, func(context.Context, Event) error { called = true; return nil })

	err := d.Publish(context.Background(), New(EventUpdateAppended, "t1", "u1", time.Now(), nil))
	assert.ErrorIs(t, err, boom)
	assert.True(t, called)
}

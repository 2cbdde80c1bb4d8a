package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAckRegistry_BindAndResolve(t *testing.T) {
	a := newAckRegistry()
	fired := false
	a.Bind(7, func() { fired = true })

	cb, ok := a.Resolve(7)
	assert.True(t, ok)
	cb()
	assert.True(t, fired)

	assert.Equal(t, 0, a.Len())
}

func TestAckRegistry_ResolveUnknownID(t *testing.T) {
	a := newAckRegistry()
	cb, ok := a.Resolve(99)
	assert.False(t, ok)
	assert.Nil(t, cb)
}

func TestAckRegistry_NilCallbackIsNoop(t *testing.T) {
	a := newAckRegistry()
	a.Bind(1, nil)
	assert.Equal(t, 0, a.Len())
}

func TestAckRegistry_Purge(t *testing.T) {
	a := newAckRegistry()
	a.Bind(1, func() {})
	a.Bind(2, func() {})
	assert.Equal(t, 2, a.Len())

	a.Purge()
	assert.Equal(t, 0, a.Len())

	_, ok := a.Resolve(1)
	assert.False(t, ok)
}

func TestAckRegistry_ResolveRemovesEntry(t *testing.T) {
	a := newAckRegistry()
	a.Bind(5, func() {})
	_, ok := a.Resolve(5)
	assert.True(t, ok)

	_, ok = a.Resolve(5)
	assert.False(t, ok, "resolving the same packet id twice must only fire once")
}

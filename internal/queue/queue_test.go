package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue_FIFOOrder(t *testing.T) {
	q := New[string]()
	q.Push("first")
	q.Push("second")
	q.Push("third")

	v, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, "first", v)

	v, ok = q.Pop()
	assert.True(t, ok)
	assert.Equal(t, "second", v)

	v, ok = q.Pop()
	assert.True(t, ok)
	assert.Equal(t, "third", v)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestQueue_Seed(t *testing.T) {
	q := New(1, 2, 3)
	assert.Equal(t, 3, q.Len())

	v, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, q.Len())
}

func TestQueue_InterleavedPushPop(t *testing.T) {
	q := New("a")

	v, _ := q.Pop()
	assert.Equal(t, "a", v)

	q.Push("b")
	q.Push("c")
	v, _ = q.Pop()
	assert.Equal(t, "b", v)

	q.Push("d")
	v, _ = q.Pop()
	assert.Equal(t, "c", v)
	v, _ = q.Pop()
	assert.Equal(t, "d", v)

	assert.Equal(t, 0, q.Len())
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestQueue_ReusableAfterDrain(t *testing.T) {
	q := New[int]()
	for i := 0; i < 10; i++ {
		q.Push(i)
	}
	for q.Len() > 0 {
		q.Pop()
	}

	q.Push(42)
	assert.Equal(t, 1, q.Len())
	v, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, 42, v)
}

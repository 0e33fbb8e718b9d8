// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package ringbuffer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antimetal/historybuffer/pkg/errors"
	"github.com/antimetal/historybuffer/pkg/history/ringbuffer"
)

func TestRingBuffer(t *testing.T) {
	t.Run("basic push and getAll", func(t *testing.T) {
		rb, err := ringbuffer.New[float64](3)
		require.NoError(t, err)

		assert.Equal(t, []float64{}, rb.GetAll())
		assert.Equal(t, 0, rb.Len())
		assert.Equal(t, 3, rb.Cap())
		assert.Equal(t, 0, rb.Start())
		assert.Equal(t, 0, rb.End())

		rb.Push(1)
		assert.Equal(t, []float64{1}, rb.GetAll())
		assert.Equal(t, 1, rb.Len())

		rb.Push(2)
		rb.Push(3)
		assert.Equal(t, []float64{1, 2, 3}, rb.GetAll())
		assert.Equal(t, 3, rb.Len())
	})

	t.Run("overflow evicts oldest and advances start", func(t *testing.T) {
		rb, err := ringbuffer.New[string](3)
		require.NoError(t, err)

		for _, s := range []string{"a", "b", "c", "d"} {
			rb.Push(s)
		}
		assert.Equal(t, []string{"b", "c", "d"}, rb.GetAll())
		assert.Equal(t, 1, rb.Start())
		assert.Equal(t, 4, rb.End())

		rb.Push("e")
		rb.Push("f")
		assert.Equal(t, []string{"d", "e", "f"}, rb.GetAll())
		assert.Equal(t, 3, rb.Start())
	})

	t.Run("get by logical index", func(t *testing.T) {
		rb, err := ringbuffer.New[int](4)
		require.NoError(t, err)

		for i := 1; i <= 7; i++ {
			rb.Push(i)
		}
		assert.Equal(t, 3, rb.Start())
		assert.Equal(t, 7, rb.End())

		v, err := rb.Get(3)
		require.NoError(t, err)
		assert.Equal(t, 4, v)

		v, err = rb.Get(6)
		require.NoError(t, err)
		assert.Equal(t, 7, v)
		assert.Equal(t, 7, rb.At(6))

		_, err = rb.Get(2)
		assert.ErrorIs(t, err, errors.ErrIndexOutOfRange)
		_, err = rb.Get(7)
		assert.ErrorIs(t, err, errors.ErrIndexOutOfRange)
		_, err = rb.Get(-1)
		assert.ErrorIs(t, err, errors.ErrIndexOutOfRange)
	})

	t.Run("large buffer", func(t *testing.T) {
		rb, err := ringbuffer.New[int](1000)
		require.NoError(t, err)

		for i := 0; i < 1100; i++ {
			rb.Push(i)
		}

		result := rb.GetAll()
		assert.Len(t, result, 1000)
		assert.Equal(t, 100, result[0])
		assert.Equal(t, 1099, result[999])
		assert.Equal(t, 100, rb.Start())
	})

	t.Run("clear buffer", func(t *testing.T) {
		rb, err := ringbuffer.New[int](5)
		require.NoError(t, err)

		for i := 0; i < 10; i++ {
			rb.Push(i)
		}
		assert.Equal(t, []int{5, 6, 7, 8, 9}, rb.GetAll())

		rb.Clear()
		assert.Equal(t, 0, rb.Len())
		assert.Equal(t, 0, rb.End())
		assert.Equal(t, []int{}, rb.GetAll())

		rb.Push(100)
		rb.Push(200)
		assert.Equal(t, []int{100, 200}, rb.GetAll())
		assert.Equal(t, 0, rb.Start())
	})

	t.Run("seek continues numbering", func(t *testing.T) {
		rb, err := ringbuffer.New[int](3)
		require.NoError(t, err)

		rb.Seek(10)
		assert.Equal(t, 0, rb.Len())
		assert.Equal(t, 10, rb.Start())
		assert.Equal(t, []int{}, rb.GetAll())

		rb.Push(1)
		rb.Push(2)
		assert.Equal(t, 10, rb.Start())
		assert.Equal(t, 12, rb.End())
		v, err := rb.Get(11)
		require.NoError(t, err)
		assert.Equal(t, 2, v)

		rb.Push(3)
		rb.Push(4)
		assert.Equal(t, 11, rb.Start())
		assert.Equal(t, []int{2, 3, 4}, rb.GetAll())
	})

	t.Run("single element buffer", func(t *testing.T) {
		rb, err := ringbuffer.New[int](1)
		require.NoError(t, err)

		rb.Push(1)
		assert.Equal(t, []int{1}, rb.GetAll())
		rb.Push(2)
		assert.Equal(t, []int{2}, rb.GetAll())
		assert.Equal(t, 1, rb.Start())
	})

	t.Run("invalid capacity", func(t *testing.T) {
		rb, err := ringbuffer.New[int](0)
		assert.Error(t, err)
		assert.Nil(t, rb)
		assert.Contains(t, err.Error(), "capacity must be greater than 0, got 0")

		rb, err = ringbuffer.New[int](-5)
		assert.Error(t, err)
		assert.Nil(t, rb)
		assert.Contains(t, err.Error(), "capacity must be greater than 0, got -5")
	})
}

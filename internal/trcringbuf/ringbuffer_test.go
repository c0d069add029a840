package trcringbuf

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func assertEqual[T any](t *testing.T, have, want T) {
	t.Helper()
	if !cmp.Equal(have, want) {
		t.Fatal(cmp.Diff(have, want))
	}
}

func TestRingBuffer(t *testing.T) {
	t.Parallel()

	rb := NewRingBuffer[int](3)

	assertEqual(t, rb.Values(), []int{})

	rb.Add(1)
	assertEqual(t, rb.Values(), []int{1})

	rb.Add(2)
	rb.Add(3)
	assertEqual(t, rb.Values(), []int{1, 2, 3})

	evicted, ok := rb.Add(4)
	assertEqual(t, ok, true)
	assertEqual(t, evicted, 1)
	assertEqual(t, rb.Values(), []int{2, 3, 4})

	rb.Add(5)
	rb.Add(6)
	assertEqual(t, rb.Values(), []int{4, 5, 6})
	assertEqual(t, rb.Stats(), Stats{Len: 3, Cap: 3, Added: 6})
}

func TestRingBufferZeroCapacity(t *testing.T) {
	t.Parallel()

	rb := NewRingBuffer[int](0)
	_, ok := rb.Add(1)
	assertEqual(t, ok, false)
	assertEqual(t, rb.Values(), []int{})
	assertEqual(t, rb.Stats(), Stats{Len: 0, Cap: 0, Added: 1})
}

func TestRingBuffers(t *testing.T) {
	t.Parallel()

	rbs := NewRingBuffers[string](2)
	rbs.GetOrCreate("0x2").Add("a")
	rbs.GetOrCreate("0x1").Add("b")
	rbs.GetOrCreate("0x1").Add("c")
	rbs.GetOrCreate("0x1").Add("d")

	assertEqual(t, rbs.Values(), map[string][]string{
		"0x1": {"c", "d"},
		"0x2": {"a"},
	})
	assertEqual(t, rbs.GetOrCreate("0x3").Stats().Cap, 2)
}

func BenchmarkRingBuffer(b *testing.B) {
	for _, capacity := range []int{100, 1000, 10000} {
		b.Run(strconv.Itoa(capacity), func(b *testing.B) {
			rb := NewRingBuffer[int](capacity)
			for i := 0; i < capacity; i++ {
				rb.Add(i)
			}

			b.ReportAllocs()

			b.Run("Add", func(b *testing.B) {
				for i := 0; i < b.N; i++ {
					rb.Add(i)
				}
			})

			b.Run("Values", func(b *testing.B) {
				for i := 0; i < b.N; i++ {
					rb.Values()
				}
			})
		})
	}
}

func BenchmarkRingBufferParallel(b *testing.B) {
	for _, capacity := range []int{100, 1000} {
		for _, par := range []int{10, 100} {
			b.Run(fmt.Sprintf("cap=%d/par=%d", capacity, par), func(b *testing.B) {
				rb := NewRingBuffer[int](capacity)
				b.SetParallelism(par)
				b.RunParallel(func(p *testing.PB) {
					for p.Next() {
						rb.Add(123)
						rb.Values()
					}
				})
			})
		}
	}
}

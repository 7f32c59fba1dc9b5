// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package index

import "container/heap"

// candidate pairs a node index with its distance to the query.
type candidate struct {
	idx  int
	dist float32
}

// minQueue pops the closest candidate first (expansion frontier).
type minQueue []candidate

func (q minQueue) Len() int           { return len(q) }
func (q minQueue) Less(i, j int) bool { return q[i].dist < q[j].dist }
func (q minQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *minQueue) Push(x any) { *q = append(*q, x.(candidate)) }

func (q *minQueue) Pop() any {
	old := *q
	n := len(old)
	c := old[n-1]
	*q = old[:n-1]
	return c
}

func (q *minQueue) push(c candidate) { heap.Push(q, c) }
func (q *minQueue) pop() candidate   { return heap.Pop(q).(candidate) }

// maxQueue pops the farthest candidate first (bounded result set).
type maxQueue []candidate

func (q maxQueue) Len() int           { return len(q) }
func (q maxQueue) Less(i, j int) bool { return q[i].dist > q[j].dist }
func (q maxQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *maxQueue) Push(x any) { *q = append(*q, x.(candidate)) }

func (q *maxQueue) Pop() any {
	old := *q
	n := len(old)
	c := old[n-1]
	*q = old[:n-1]
	return c
}

func (q *maxQueue) push(c candidate) { heap.Push(q, c) }
func (q *maxQueue) pop() candidate   { return heap.Pop(q).(candidate) }
func (q maxQueue) peek() candidate   { return q[0] }

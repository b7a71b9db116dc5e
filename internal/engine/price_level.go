package engine

import "github.com/alanyoungcy/predictd/internal/domain"

// queueNode links an order into its price level's FIFO queue.
type queueNode struct {
	order *domain.Order
	next  *queueNode
	prev  *queueNode
}

// priceLevel is the FIFO queue of resting orders sharing one limit price.
// totalQty tracks the sum of unfilled quantity across the queue.
type priceLevel struct {
	price      int64
	head       *queueNode
	tail       *queueNode
	totalQty   int64
	orderCount int
}

func (l *priceLevel) enqueue(o *domain.Order) *queueNode {
	n := &queueNode{order: o}
	if l.head == nil {
		l.head = n
		l.tail = n
	} else {
		l.tail.next = n
		n.prev = l.tail
		l.tail = n
	}
	l.totalQty += o.Remaining()
	l.orderCount++
	return n
}

func (l *priceLevel) unlink(n *queueNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.next = nil
	n.prev = nil
	l.totalQty -= n.order.Remaining()
	l.orderCount--
	if l.totalQty < 0 {
		l.totalQty = 0
	}
}

func (l *priceLevel) empty() bool {
	return l.head == nil
}

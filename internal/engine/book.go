package engine

import "github.com/alanyoungcy/predictd/internal/domain"

// book holds the resting orders of one outcome channel: a bid tree for buys
// and an ask tree for sells. nodes indexes every resting order's queue node
// so cancellation can unlink in O(log n).
type book struct {
	bids  *rbTree
	asks  *rbTree
	nodes map[string]*queueNode
}

func newBook() *book {
	return &book{
		bids:  newRBTree(),
		asks:  newRBTree(),
		nodes: make(map[string]*queueNode),
	}
}

func (b *book) side(s domain.Side) *rbTree {
	if s == domain.SideBuy {
		return b.bids
	}
	return b.asks
}

// rest places an order with remaining quantity onto its side of the book.
func (b *book) rest(o *domain.Order) {
	lvl := b.side(o.Side).upsertLevel(o.Price)
	b.nodes[o.ID] = lvl.enqueue(o)
}

// remove unlinks a resting order, dropping its level when it empties.
func (b *book) remove(o *domain.Order) {
	n, ok := b.nodes[o.ID]
	if !ok {
		return
	}
	delete(b.nodes, o.ID)

	tree := b.side(o.Side)
	lvl := tree.findLevel(o.Price)
	if lvl == nil {
		return
	}
	lvl.unlink(n)
	if lvl.empty() {
		tree.deleteLevel(o.Price)
	}
}

// reduce accounts a partial fill of qty against a resting order. Fully filled
// orders are unlinked and their level dropped when empty.
func (b *book) reduce(o *domain.Order, qty int64) {
	tree := b.side(o.Side)
	lvl := tree.findLevel(o.Price)
	if lvl == nil {
		return
	}

	lvl.totalQty -= qty
	if lvl.totalQty < 0 {
		lvl.totalQty = 0
	}

	if o.Remaining() == 0 {
		if n, ok := b.nodes[o.ID]; ok {
			delete(b.nodes, o.ID)
			lvl.unlink(n)
		}
		if lvl.empty() {
			tree.deleteLevel(o.Price)
		}
	}
}

// openOrders lists the resting orders on both sides in match priority: best
// price first, FIFO within a level.
func (b *book) openOrders() (bids, asks []*domain.Order) {
	b.bids.descend(func(lvl *priceLevel) bool {
		for n := lvl.head; n != nil; n = n.next {
			bids = append(bids, n.order)
		}
		return true
	})
	b.asks.ascend(func(lvl *priceLevel) bool {
		for n := lvl.head; n != nil; n = n.next {
			asks = append(asks, n.order)
		}
		return true
	})
	return bids, asks
}

// snapshot aggregates the book into display levels, bids best-first and asks
// best-first.
func (b *book) snapshot() (bids, asks []domain.BookLevel) {
	b.bids.descend(func(lvl *priceLevel) bool {
		bids = append(bids, domain.BookLevel{
			Price:    lvl.price,
			Quantity: lvl.totalQty,
			Orders:   lvl.orderCount,
		})
		return true
	})
	b.asks.ascend(func(lvl *priceLevel) bool {
		asks = append(asks, domain.BookLevel{
			Price:    lvl.price,
			Quantity: lvl.totalQty,
			Orders:   lvl.orderCount,
		})
		return true
	})
	return bids, asks
}

package engine

// rbTree is a red-black tree mapping a price to its priceLevel. It backs one
// side of an order book: best bid is the maximum key, best ask the minimum.

type color uint8

const (
	red   color = 0
	black color = 1
)

type treeNode struct {
	key    int64
	level  *priceLevel
	color  color
	left   *treeNode
	right  *treeNode
	parent *treeNode
}

type rbTree struct {
	root *treeNode
	nil_ *treeNode // shared sentinel leaf
	size int
}

func newRBTree() *rbTree {
	sentinel := &treeNode{color: black}
	return &rbTree{root: sentinel, nil_: sentinel}
}

func (t *rbTree) len() int { return t.size }

// findLevel returns the level at exactly price, or nil.
func (t *rbTree) findLevel(price int64) *priceLevel {
	n := t.root
	for n != t.nil_ {
		switch {
		case price < n.key:
			n = n.left
		case price > n.key:
			n = n.right
		default:
			return n.level
		}
	}
	return nil
}

// upsertLevel returns the level at price, creating it if absent.
func (t *rbTree) upsertLevel(price int64) *priceLevel {
	parent := t.nil_
	cur := t.root
	for cur != t.nil_ {
		parent = cur
		switch {
		case price < cur.key:
			cur = cur.left
		case price > cur.key:
			cur = cur.right
		default:
			return cur.level
		}
	}

	lvl := &priceLevel{price: price}
	z := &treeNode{key: price, level: lvl, color: red, left: t.nil_, right: t.nil_, parent: parent}
	if parent == t.nil_ {
		t.root = z
	} else if price < parent.key {
		parent.left = z
	} else {
		parent.right = z
	}
	t.insertFixup(z)
	t.size++
	return lvl
}

// deleteLevel removes the level at price if present.
func (t *rbTree) deleteLevel(price int64) bool {
	z := t.searchNode(price)
	if z == t.nil_ {
		return false
	}
	t.deleteNode(z)
	t.size--
	return true
}

// minLevel returns the lowest-priced level, or nil on an empty tree.
func (t *rbTree) minLevel() *priceLevel {
	n := t.minNode(t.root)
	if n == t.nil_ {
		return nil
	}
	return n.level
}

// maxLevel returns the highest-priced level, or nil on an empty tree.
func (t *rbTree) maxLevel() *priceLevel {
	n := t.maxNode(t.root)
	if n == t.nil_ {
		return nil
	}
	return n.level
}

// ascend visits levels lowest price first until fn returns false.
func (t *rbTree) ascend(fn func(*priceLevel) bool) {
	for n := t.minNode(t.root); n != t.nil_; n = t.successor(n) {
		if !fn(n.level) {
			return
		}
	}
}

// descend visits levels highest price first until fn returns false.
func (t *rbTree) descend(fn func(*priceLevel) bool) {
	for n := t.maxNode(t.root); n != t.nil_; n = t.predecessor(n) {
		if !fn(n.level) {
			return
		}
	}
}

func (t *rbTree) searchNode(price int64) *treeNode {
	n := t.root
	for n != t.nil_ {
		switch {
		case price < n.key:
			n = n.left
		case price > n.key:
			n = n.right
		default:
			return n
		}
	}
	return t.nil_
}

func (t *rbTree) minNode(n *treeNode) *treeNode {
	if n == t.nil_ {
		return t.nil_
	}
	for n.left != t.nil_ {
		n = n.left
	}
	return n
}

func (t *rbTree) maxNode(n *treeNode) *treeNode {
	if n == t.nil_ {
		return t.nil_
	}
	for n.right != t.nil_ {
		n = n.right
	}
	return n
}

func (t *rbTree) successor(n *treeNode) *treeNode {
	if n.right != t.nil_ {
		return t.minNode(n.right)
	}
	p := n.parent
	for p != t.nil_ && n == p.right {
		n = p
		p = p.parent
	}
	return p
}

func (t *rbTree) predecessor(n *treeNode) *treeNode {
	if n.left != t.nil_ {
		return t.maxNode(n.left)
	}
	p := n.parent
	for p != t.nil_ && n == p.left {
		n = p
		p = p.parent
	}
	return p
}

func (t *rbTree) rotateLeft(x *treeNode) {
	y := x.right
	x.right = y.left
	if y.left != t.nil_ {
		y.left.parent = x
	}
	y.parent = x.parent
	switch {
	case x.parent == t.nil_:
		t.root = y
	case x == x.parent.left:
		x.parent.left = y
	default:
		x.parent.right = y
	}
	y.left = x
	x.parent = y
}

func (t *rbTree) rotateRight(x *treeNode) {
	y := x.left
	x.left = y.right
	if y.right != t.nil_ {
		y.right.parent = x
	}
	y.parent = x.parent
	switch {
	case x.parent == t.nil_:
		t.root = y
	case x == x.parent.right:
		x.parent.right = y
	default:
		x.parent.left = y
	}
	y.right = x
	x.parent = y
}

func (t *rbTree) insertFixup(z *treeNode) {
	for z.parent.color == red {
		if z.parent == z.parent.parent.left {
			uncle := z.parent.parent.right
			if uncle.color == red {
				z.parent.color = black
				uncle.color = black
				z.parent.parent.color = red
				z = z.parent.parent
			} else {
				if z == z.parent.right {
					z = z.parent
					t.rotateLeft(z)
				}
				z.parent.color = black
				z.parent.parent.color = red
				t.rotateRight(z.parent.parent)
			}
		} else {
			uncle := z.parent.parent.left
			if uncle.color == red {
				z.parent.color = black
				uncle.color = black
				z.parent.parent.color = red
				z = z.parent.parent
			} else {
				if z == z.parent.left {
					z = z.parent
					t.rotateRight(z)
				}
				z.parent.color = black
				z.parent.parent.color = red
				t.rotateLeft(z.parent.parent)
			}
		}
	}
	t.root.color = black
}

func (t *rbTree) transplant(u, v *treeNode) {
	switch {
	case u.parent == t.nil_:
		t.root = v
	case u == u.parent.left:
		u.parent.left = v
	default:
		u.parent.right = v
	}
	v.parent = u.parent
}

func (t *rbTree) deleteNode(z *treeNode) {
	y := z
	yOriginal := y.color
	var x *treeNode

	switch {
	case z.left == t.nil_:
		x = z.right
		t.transplant(z, z.right)
	case z.right == t.nil_:
		x = z.left
		t.transplant(z, z.left)
	default:
		y = t.minNode(z.right)
		yOriginal = y.color
		x = y.right
		if y.parent == z {
			x.parent = y
		} else {
			t.transplant(y, y.right)
			y.right = z.right
			y.right.parent = y
		}
		t.transplant(z, y)
		y.left = z.left
		y.left.parent = y
		y.color = z.color
	}

	if yOriginal == black {
		t.deleteFixup(x)
	}
}

func (t *rbTree) deleteFixup(x *treeNode) {
	for x != t.root && x.color == black {
		if x == x.parent.left {
			w := x.parent.right
			if w.color == red {
				w.color = black
				x.parent.color = red
				t.rotateLeft(x.parent)
				w = x.parent.right
			}
			if w.left.color == black && w.right.color == black {
				w.color = red
				x = x.parent
			} else {
				if w.right.color == black {
					w.left.color = black
					w.color = red
					t.rotateRight(w)
					w = x.parent.right
				}
				w.color = x.parent.color
				x.parent.color = black
				w.right.color = black
				t.rotateLeft(x.parent)
				x = t.root
			}
		} else {
			w := x.parent.left
			if w.color == red {
				w.color = black
				x.parent.color = red
				t.rotateRight(x.parent)
				w = x.parent.left
			}
			if w.right.color == black && w.left.color == black {
				w.color = red
				x = x.parent
			} else {
				if w.left.color == black {
					w.right.color = black
					w.color = red
					t.rotateLeft(w)
					w = x.parent.left
				}
				w.color = x.parent.color
				x.parent.color = black
				w.left.color = black
				t.rotateRight(x.parent)
				x = t.root
			}
		}
	}
	x.color = black
}

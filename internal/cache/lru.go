package cache

// node is an entry in the recency list. It stores the key so the oldest
// entry can be removed from the owning map in O(1).
type node[K comparable] struct {
	key        K
	prev, next *node[K]
}

// recency is a doubly-linked list ordered from most to least recently used.
// It is not safe for concurrent use.
type recency[K comparable] struct {
	head, tail *node[K]
	n          int
}

func (l *recency[K]) len() int { return l.n }

func (l *recency[K]) pushFront(key K) *node[K] {
	nd := &node[K]{key: key}
	l.linkFront(nd)
	return nd
}

func (l *recency[K]) touch(nd *node[K]) {
	if nd == l.head {
		return
	}
	l.unlink(nd)
	l.linkFront(nd)
}

func (l *recency[K]) remove(nd *node[K]) { l.unlink(nd) }

// popBack removes the least recently used key.
func (l *recency[K]) popBack() (K, bool) {
	if l.tail == nil {
		var zero K
		return zero, false
	}
	nd := l.tail
	l.unlink(nd)
	return nd.key, true
}

func (l *recency[K]) reset() {
	l.head, l.tail, l.n = nil, nil, 0
}

func (l *recency[K]) linkFront(nd *node[K]) {
	nd.prev = nil
	nd.next = l.head
	if l.head != nil {
		l.head.prev = nd
	}
	l.head = nd
	if l.tail == nil {
		l.tail = nd
	}
	l.n++
}

func (l *recency[K]) unlink(nd *node[K]) {
	if nd.prev != nil {
		nd.prev.next = nd.next
	} else {
		l.head = nd.next
	}
	if nd.next != nil {
		nd.next.prev = nd.prev
	} else {
		l.tail = nd.prev
	}
	nd.prev, nd.next = nil, nil
	l.n--
}

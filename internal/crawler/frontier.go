package crawler

// Frontier is the FIFO queue of URLs waiting to be dispatched, together
// with the visited set of every URL ever pushed. A URL enters the queue at
// most once for the lifetime of the Frontier, so each URL is dispatched at
// most once per crawl.
//
// A Frontier is owned by a single supervisor goroutine and is not safe for
// concurrent use.
type Frontier struct {
	queue   []string
	head    int
	visited map[string]struct{}
	limit   int
}

// NewFrontier creates an empty Frontier. A positive limit caps the size of
// the visited set; pushes beyond it are dropped.
func NewFrontier(limit int) *Frontier {
	return &Frontier{
		visited: make(map[string]struct{}),
		limit:   limit,
	}
}

// Push enqueues u unless it was pushed before or the limit is reached.
// It reports whether u was enqueued.
func (f *Frontier) Push(u string) bool {
	if _, ok := f.visited[u]; ok {
		return false
	}
	if f.limit > 0 && len(f.visited) >= f.limit {
		return false
	}
	f.visited[u] = struct{}{}
	f.queue = append(f.queue, u)
	return true
}

// Pop removes and returns the oldest queued URL.
func (f *Frontier) Pop() (string, bool) {
	if f.head == len(f.queue) {
		return "", false
	}
	u := f.queue[f.head]
	f.queue[f.head] = ""
	f.head++

	// Reclaim the consumed prefix once it dominates the slice.
	if f.head > 1024 && f.head*2 > len(f.queue) {
		f.queue = append([]string(nil), f.queue[f.head:]...)
		f.head = 0
	}
	return u, true
}

// Len returns the number of queued URLs.
func (f *Frontier) Len() int {
	return len(f.queue) - f.head
}

// Seen returns the size of the visited set.
func (f *Frontier) Seen() int {
	return len(f.visited)
}

// Visited reports whether u was ever pushed.
func (f *Frontier) Visited(u string) bool {
	_, ok := f.visited[u]
	return ok
}

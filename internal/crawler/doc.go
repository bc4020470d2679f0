// Package crawler is the crawl engine: it discovers every page of a single
// domain reachable by same-domain links and records each distinct URL.
//
// # Architecture
//
// Four pieces cooperate:
//
//   - Registry: the entry point. Maps a domain to its crawl, guarantees at
//     most one running crawl per domain and applies the restart policy.
//   - supervisor: one goroutine per running crawl. Owns the Frontier (queue
//     plus visited set), dispatches URLs to the pool, records outcomes in the
//     result store and decides when the crawl is over.
//   - Pool: a fixed number of stateless workers shared by every crawl.
//     Fetches with retries, extracts links, and reports a model.FetchOutcome
//     on the reply channel carried by the task.
//   - Normalizer: pure link canonicalization and scope checks.
//
// Design decision: supervisors communicate with workers only by message
// passing. The frontier and visited set have a single owner and need no
// locks; the result store is the only shared state, and it is written by
// exactly one supervisor per domain.
//
// # Termination
//
// A crawl is Completed when its frontier is empty and it has no outstanding
// task. Outstanding tasks are leased: a task with no outcome after the lease
// timeout is recorded as failed, so a lost worker cannot hang a crawl.
// A crawl whose root URL cannot be fetched ends Failed with an empty result.
//
// # Usage
//
//	pool := crawler.NewPool(fetchClient, crawler.WithWorkers(16))
//	pool.Start(ctx)
//	reg := crawler.NewRegistry(ctx, pool, store.New())
//	state, err := reg.StartCrawl("example.com")
//	res, err := reg.Await(ctx, "example.com")
package crawler

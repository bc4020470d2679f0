// Package model defines the data structures shared by the crawl engine,
// the result store, the HTTP front end and the report writers.
//
// This package contains the following main types:
//   - CrawlState: The lifecycle state of a domain crawl
//   - DiscoveredURL: A normalized URL confirmed to belong to a domain
//   - CrawlResult: A consistent snapshot of everything found for a domain
//   - FetchOutcome: The message a fetch worker reports back for one task
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The crawler, store, server, archive and report packages all
// need these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for HTTP responses,
// report output and archive storage.
package model

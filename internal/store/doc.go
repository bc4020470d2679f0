// Package store holds the in-memory Result Store: the discovered URLs of
// every domain that has been crawled since the process started.
//
// Each domain has exactly one writer, the supervisor running its crawl, and
// any number of readers (HTTP handlers, the CLI). Writers and readers of
// different domains never contend on the same lock: the top-level map lock
// is held only long enough to find or replace a domain's entry.
package store

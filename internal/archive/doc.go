// Package archive keeps a history of finished crawls in SQLite.
//
// Every crawl that reaches a terminal state can be appended as one run row
// plus one row per discovered URL. The archive is write-behind: the engine
// never reads it back, so it does not make crawl results durable across
// restarts. It exists for the history command and for offline analysis.
//
// Design decision: We use SQLite (via modernc.org/sqlite) because the
// database is a single file and the driver needs no CGO. Runs and URLs are
// kept in separate tables so history listings stay cheap for large crawls.
package archive

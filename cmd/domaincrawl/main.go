// Package main provides the entry point for the domaincrawl CLI.
//
// domaincrawl crawls every page of a single web domain, following links
// that stay on that domain, and records the URLs it discovers.
//
// Usage:
//
//	domaincrawl serve
//	domaincrawl crawl <domain>...
//	domaincrawl history [domain]
//
// See --help for all available options.
package main

// main is the entry point for domaincrawl.
func main() {
	Execute()
}

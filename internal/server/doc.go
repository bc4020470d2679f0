// Package server exposes the crawl engine over HTTP.
//
// Endpoints:
//
//	GET|POST /crawl/{domain}   start a crawl; 202 with the resulting state
//	GET      /urls/{domain}    discovered URLs (?detail=1 for metadata)
//	GET      /count/{domain}   number of discovered URLs
//	GET      /status/{domain}  crawl summary without the URL list
//	GET      /healthz          liveness probe
//	GET      /metrics          Prometheus metrics, when enabled
//
// Domains that were never crawled answer 404; malformed domains answer 400.
// Every response except / and /healthz is JSON.
package server

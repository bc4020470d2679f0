// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// Per-site configuration can attach cookies, authorization headers and proxy
// credentials to crawl requests. The SecureHandler keeps those out of log
// output:
//   - attributes whose key names a credential (cookie, authorization, token, ...)
//   - values that look like bearer/basic credentials, JWTs or private keys
//   - userinfo and secret query parameters inside URLs, including URLs
//     embedded in error messages
//
// # Usage
//
//	logger := log.New(os.Stderr, log.FormatJSON, log.Level(verbose, slog.LevelInfo))
//	logger.Info("fetch failed",
//	    "url", "http://user:pw@example.com/?token=abc", // logged as http://***REDACTED***@example.com/?token=***REDACTED***
//	    "cookie", "session=abc123",                     // logged as ***REDACTED***
//	)
//	slog.SetDefault(logger)
package log

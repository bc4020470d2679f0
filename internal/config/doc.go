// Package config provides configuration structures and utilities for domaincrawl.
// It defines the engine and server options, the per-site configuration file
// and the XDG locations used for the config file and the history database.
package config

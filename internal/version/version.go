// Package version holds the release version of the scraper.
package version

// Current is the release version, without a "v" prefix.
const Current = "0.3.0"

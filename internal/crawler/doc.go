// Package crawler defines the domain types and collaborator interfaces
// shared across the crawler-tool subsystems: registered sites, their
// category listing pages, and the crawl tasks executed against them.
package crawler

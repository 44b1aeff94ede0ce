// Package crawler holds the types, interfaces and sentinel errors shared by the
// H1B job ingestion pipeline: sources, raw and normalized listings, employers,
// run provenance, and the repository contract the pipeline writes through.
package crawler

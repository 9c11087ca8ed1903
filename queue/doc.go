// Package queue provides the bounded work queue and counting barrier that
// connect the ingestion stages.
package queue

// Package taskqueue runs analysis requests on a bounded background worker
// pool with idempotent submission: equivalent concurrent requests coalesce
// onto one task record instead of duplicating work.
package taskqueue

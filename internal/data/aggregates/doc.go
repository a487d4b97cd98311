// Package aggregates implements the course-tree aggregate on top of the table
// repos in internal/data/repos. It owns the transaction of every write so the
// unlock, barrier and content invariants are checked and applied atomically.
package aggregates

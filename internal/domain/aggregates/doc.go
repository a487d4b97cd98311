// Package aggregates defines the write boundaries of the course tree.
//
// Every method of an aggregate contract runs in one transaction it owns, so the
// invariants linking Course, Module, Chapter and Quiz rows hold after each call.
package aggregates

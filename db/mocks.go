// Package db declares the narrow interfaces storage and sequencer code
// depend on instead of a concrete *borp.DbMap/*borp.Transaction, so unit
// tests can substitute an in-memory fake without dragging in a real
// database. Adapted from gorp.v2 to borp (the teacher's go.mod pins
// github.com/letsencrypt/borp, a gorp-API-compatible fork).
package db

import (
	"database/sql"

	"github.com/letsencrypt/borp"
)

// These interfaces exist to aid in mocking database operations for unit tests.
//
// By convention, any function that takes a OneSelector, Selector,
// Inserter, Execer, or SelectExecer as as an argument expects
// that a context has already been applied to the relevant DbMap or
// Transaction object.

// A `OneSelector` is anything that provides a `SelectOne` function.
type OneSelector interface {
	SelectOne(interface{}, string, ...interface{}) error
}

// A `Selector` is anything that provides a `Select` function.
type Selector interface {
	Select(interface{}, string, ...interface{}) ([]interface{}, error)
}

// A `Inserter` is anything that provides an `Insert` function
type Inserter interface {
	Insert(list ...interface{}) error
}

// A `Execer` is anything that provides an `Exec` function
type Execer interface {
	Exec(string, ...interface{}) (sql.Result, error)
}

// SelectExecer offers a subset of gorp.SqlExecutor's methods: Select and
// Exec.
type SelectExecer interface {
	Selector
	Execer
}

// OneSelectExecer offers SelectOne and Exec, the combination storage's
// upsert helpers need: a point lookup followed by a conditional write.
type OneSelectExecer interface {
	OneSelector
	Execer
}

// DatabaseMap offers the full combination of OneSelector, Inserter,
// SelectExecer, and a Begin function for creating a Transaction.
type DatabaseMap interface {
	OneSelector
	Inserter
	SelectExecer
	Begin() (*borp.Transaction, error)
}

// Transaction offers the combination of OneSelector, Inserter, SelectExecer
// interface as well as Delete, Get, and Update.
type Transaction interface {
	OneSelector
	Inserter
	SelectExecer
	Delete(...interface{}) (int64, error)
	Get(interface{}, ...interface{}) (interface{}, error)
	Update(...interface{}) (int64, error)
}

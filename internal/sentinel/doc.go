// Package sentinel provides a string-backed error type so that sentinel errors
// can be declared as constants.
//
// Values created with errors.New live in package variables that any importer
// can overwrite. An Error is a plain string, so it can be a const, and because
// the type is comparable errors.Is matches it through %w wrapping chains.
package sentinel

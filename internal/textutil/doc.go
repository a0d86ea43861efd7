// Package textutil holds small string helpers shared by the publishers:
// rune-safe truncation and filename sanitizing for exported notes.
package textutil

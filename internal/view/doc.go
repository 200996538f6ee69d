// Package view owns the worker connections for one loaded sequence. A View is
// driven from a single goroutine: its owner calls Poll on every idle tick and
// every other method from that same goroutine.
package view

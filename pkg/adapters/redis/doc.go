// Package redis provides Redis backed adapters: a memory slot store, a
// status publisher and a control lease locker.
package redis

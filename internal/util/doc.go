// Package util holds small helpers shared by the server and the storage
// backends.
//
// Credentials never appear in logs in full. Log lines carry a short prefix
// produced by SafeTruncate, enough to correlate a code or token across
// components without making it usable.
package util

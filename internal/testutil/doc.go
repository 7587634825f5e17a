// Package testutil provides testing utilities, fixtures and a controllable clock
// shared by the authorization server's tests.
package testutil

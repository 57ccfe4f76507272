// Package clock provides a tiny time abstraction.
//
// Code that judges expiry or lockout windows depends on the Clock interface
// instead of calling time.Now directly, so tests can drive time with Fake.
package clock

// Package fake
// Author: momentics <momentics@gmail.com>
//
// Recording implementations of the engine's callback interfaces for tests
// and development: task completers, connection handlers, acceptors and a
// buffer factory with failure injection.
package fake

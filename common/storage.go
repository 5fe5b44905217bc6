package common

// Storage defines a minimal interface for a durable key/value store that a
// credential pair can survive a process restart in.
//
// For example, you could back this with:
//   - a JSON file on disk
//   - an in-memory map (nothing survives, useful for tests)
//   - an OS keychain, or any other synchronous key/value system
//
// Implementations swallow their own I/O errors: a value that cannot be read
// is reported as absent, and a write that fails is silently dropped. Callers
// treat the durable mirror as best-effort.
type Storage interface {
	Get(key string) (value []byte, found bool)
	Set(key string, value []byte)
	Remove(key string)
}

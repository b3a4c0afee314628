// Package xprocess coordinates access to one file across independent
// processes with an OS advisory lock.
//
// A [Gate] wraps a single I/O body in a shared (read) or exclusive (write)
// native lock. The native attempt never blocks: if another process holds a
// conflicting lock the call fails immediately with an
// *errors.GlobalLockError, which callers in multi-process deployments are
// expected to retry with backoff.
//
// # Same-process overlap
//
// flock(2) locks belong to an open file description, so two goroutines of the
// same process opening the file twice conflict with each other exactly as two
// processes would. The Gate therefore serializes its own callers with a
// sync.RWMutex (shared bodies on the read side, exclusive bodies on the write
// side) so that only genuine cross-process contention is ever reported.
//
// # Backends
//
// A [Locker] performs the native attempt:
//   - [HandleLocker] locks the very handle used for I/O: flock(2) through
//     golang.org/x/sys/unix, or LockFileEx over the whole file through
//     golang.org/x/sys/windows.
//   - [PathLocker] locks the file by path through github.com/gofrs/flock.
//     Windows range locks are mandatory and would block I/O through the
//     facade's own handle, so LockerFor only offers it on Unix.
//
// Both lock the same file, so processes using either backend exclude each
// other.
package xprocess

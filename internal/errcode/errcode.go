package errcode

// Status codes carried in render notifications:
// - 0: success
// - 4xxx: recoverable warnings (rendering finished with fallbacks)
// - 5xxx: system errors (rendering aborted)
const (
	OK              = 0
	ResourceMissing = 4004
	SystemError     = 5000
)

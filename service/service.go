package service

// Service is a long-running component of the daemon. Start blocks until the
// service stops or fails; Stop asks it to return.
type Service interface {
	Start() error
	Stop() error
}

package session

// Destination is a surface the user should be sent to.
type Destination string

const (
	DestinationAdmin Destination = "/admin"
	DestinationLogin Destination = "/login"
)

// A Navigator receives the navigation signals raised by login and logout.
// It is called without the manager's lock held.
type Navigator interface {
	Navigate(dest Destination)
}

type NavigatorFunc func(dest Destination)

func (f NavigatorFunc) Navigate(dest Destination) {
	f(dest)
}

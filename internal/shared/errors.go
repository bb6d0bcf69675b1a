package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Session errors
	ErrUnauthenticated = fmt.Errorf("not signed in")
	ErrInvalidEmail    = fmt.Errorf("invalid email address")

	// Collection and rating errors
	ErrIdentityUnresolvable = fmt.Errorf("item has no usable identity")
	ErrInvalidRating        = fmt.Errorf("rating must be an integer between 1 and 10")
	ErrUnknownCollection    = fmt.Errorf("unknown collection")

	// Persistence errors
	ErrPersistenceWriteFailed = fmt.Errorf("persistence write failed")
	ErrPersistenceReadCorrupt = fmt.Errorf("persisted value is corrupt")
	ErrQuotaExceeded          = fmt.Errorf("storage quota exceeded")
	ErrPersistenceReadFailed  = fmt.Errorf("persistence read failed")
	ErrStorageClosed          = fmt.Errorf("storage closed")
	ErrNoMigrations           = fmt.Errorf("no migrations to roll back")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTitleNotFound      = fmt.Errorf("title not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

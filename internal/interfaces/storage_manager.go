package interfaces

// StorageManager provides access to the typed storage services
type StorageManager interface {
	// KeyValueStorage returns the key/value storage service
	KeyValueStorage() KeyValueStorage

	// DB returns the underlying database connection for diagnostics
	DB() interface{}

	// Close closes the database connection
	Close() error
}

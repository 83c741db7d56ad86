package models

// ModelRegistry lists the models handled by AutoMigrate in development.
var ModelRegistry = []interface{}{
	&WaitlistEntry{},
}

package domain

// KeyPrefix namespaces every key the service writes to the shared cache.
const KeyPrefix = "fuego:"

package domain

// KeyPrefix namespaces every key this service writes to a shared Redis/Valkey instance.
const KeyPrefix = "ragserver:"

package errors

// StorageError indicates a failure reading or writing the durable job record.
const StorageError ErrorType = "storage_error"

// ConfigError indicates invalid or unreadable daemon configuration.
const ConfigError ErrorType = "config_error"

// QueueError indicates a failure talking to the intake message broker.
const QueueError ErrorType = "queue_error"

// NotifyError indicates a failure dispatching a notification event.
// Notifications are fire-and-forget, so these are logged, never propagated.
const NotifyError ErrorType = "notify_error"

package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"  validate:"required"`
	Webhook   WebhookConfig   `mapstructure:"webhook"   validate:"required"`
	Events    EventsConfig    `mapstructure:"events"    validate:"required"`
	Storage   StorageConfig   `mapstructure:"storage"   validate:"required"`
	Transform TransformConfig `mapstructure:"transform"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
// An empty URL selects the in-memory stores (single-process dev mode).
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// PipelineConfig tunes the job queue and worker pool.
type PipelineConfig struct {
	// WorkerCount determines how many concurrent workers process jobs.
	WorkerCount int `mapstructure:"worker_count" validate:"required,gt=0"`

	// QueueSize determines the buffer size of the in-memory job queue.
	QueueSize int `mapstructure:"queue_size" validate:"required,gt=0"`

	// MaxAttempts bounds how many times a job is executed before it is
	// terminally failed.
	MaxAttempts int `mapstructure:"max_attempts" validate:"required,gt=0"`

	// RetryBackoffSeconds is the base delay for exponential retry backoff.
	RetryBackoffSeconds int `mapstructure:"retry_backoff_seconds" validate:"required,gt=0"`

	// DequeueRate caps how many jobs may be dequeued per DequeueWindowSeconds,
	// protecting the transform collaborator from overload.
	DequeueRate          int `mapstructure:"dequeue_rate"           validate:"required,gt=0"`
	DequeueWindowSeconds int `mapstructure:"dequeue_window_seconds" validate:"required,gt=0"`

	// TransformTimeoutSeconds bounds a single transform model call so a
	// stuck call cannot pin a worker slot indefinitely.
	TransformTimeoutSeconds int `mapstructure:"transform_timeout_seconds" validate:"required,gt=0"`
}

// WebhookConfig tunes outbound webhook delivery.
type WebhookConfig struct {
	// RequestTimeoutSeconds bounds a single delivery POST.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds" validate:"required,gt=0"`

	// MaxAttempts bounds delivery retries per subscriber per event.
	MaxAttempts int `mapstructure:"max_attempts" validate:"required,gt=0"`

	// RetryBackoffSeconds is the base delay for delivery retry backoff.
	RetryBackoffSeconds int `mapstructure:"retry_backoff_seconds" validate:"required,gt=0"`

	// QueueSize is the buffer size of the delivery queue between Publish
	// and the dispatcher loop.
	QueueSize int `mapstructure:"queue_size" validate:"required,gt=0"`
}

// EventsConfig tunes the live event stream.
type EventsConfig struct {
	// HeartbeatSeconds is the interval between SSE heartbeat comments.
	HeartbeatSeconds int `mapstructure:"heartbeat_seconds" validate:"required,gt=0"`

	// SubscriberBuffer is the per-listener channel buffer; a listener that
	// falls this far behind starts dropping events.
	SubscriberBuffer int `mapstructure:"subscriber_buffer" validate:"required,gt=0"`
}

// StorageConfig locates the asset blob store.
type StorageConfig struct {
	// BlobDir is the filesystem root holding source and result images.
	BlobDir string `mapstructure:"blob_dir" validate:"required"`
}

// TransformConfig contains settings for the image transform model client.
type TransformConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	ModelName    string `mapstructure:"model_name"`
}

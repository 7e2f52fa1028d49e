package dbosruntime

// Config holds the DBOS runtime settings for the regeneration queue.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string DBOS checkpoints
	// workflow state into. Required.
	DatabaseURL string

	// AppName identifies this worker in the DBOS status tables. Required.
	AppName string

	// QueueName selects the workflow queue. Defaults to "default".
	QueueName string

	// Concurrency is the number of workflows executed in parallel per
	// queue. Zero means 4.
	Concurrency int

	// ApplicationVersion overrides the binary-hash version DBOS uses for
	// workflow/version matching, letting several binaries share a queue.
	ApplicationVersion string
}

func (c *Config) withDefaults() {
	if c.QueueName == "" {
		c.QueueName = "default"
	}
	if c.Concurrency == 0 {
		c.Concurrency = 4
	}
}

package config

const (
	// TopicIngestDocument is the NSQ topic for document processing tasks.
	TopicIngestDocument = "ingest.document"
)

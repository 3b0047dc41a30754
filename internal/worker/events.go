package worker

type IngestDocumentPayload struct {
	DocumentID    string `json:"document_id"`
	CorrelationID string `json:"correlation_id"`
}

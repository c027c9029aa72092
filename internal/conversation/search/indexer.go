package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"claims-intake/internal/common/logger"
	"claims-intake/internal/models"
)

// Indexer mirrors delivered transcripts into Elasticsearch so agents can
// search past conversations by claim.
type Indexer struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

// NewIndexer creates a transcript indexer writing to the given index.
func NewIndexer(client *elasticsearch.Client, index string, log logger.Logger) *Indexer {
	return &Indexer{
		client: client,
		index:  index,
		logger: log,
	}
}

// Index stores one transcript document keyed by conversation id, so a
// redelivery overwrites rather than duplicates.
func (i *Indexer) Index(ctx context.Context, t models.Transcript) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript document: %w", err)
	}

	res, err := i.client.Index(
		i.index,
		bytes.NewReader(body),
		i.client.Index.WithContext(ctx),
		i.client.Index.WithDocumentID(t.ConversationID),
	)
	if err != nil {
		return fmt.Errorf("failed to index transcript %s: %w", t.ConversationID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("transcript index request returned %s", res.Status())
	}

	i.logger.WithFields(map[string]interface{}{
		"conversation_id": t.ConversationID,
		"index":           i.index,
	}).Debug("Transcript indexed", nil)

	return nil
}

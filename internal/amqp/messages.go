package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// Routing keys used on the topic exchange.
const (
	RoutingTransactionImported = "transactions.imported"
	RoutingMerchantsMerged     = "merchants.merged"
)

var ErrEmptyTransactionID = errors.New("message has empty transaction_id")

// TransactionImportedMessage announces a stored transaction whose
// counterparty still needs resolving. It carries only the id; the worker
// loads the row from the database.
type TransactionImportedMessage struct {
	TransactionID string    `json:"transaction_id"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewTransactionImportedMessage(id string) *TransactionImportedMessage {
	return &TransactionImportedMessage{
		TransactionID: id,
		Timestamp:     time.Now(),
	}
}

func (m *TransactionImportedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionImportedMessageFromJSON decodes a message and rejects one
// without a transaction id.
func TransactionImportedMessageFromJSON(data []byte) (*TransactionImportedMessage, error) {
	var msg TransactionImportedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.TransactionID == "" {
		return nil, ErrEmptyTransactionID
	}
	return &msg, nil
}

// MerchantsMergedMessage is emitted after a deduplication pass folded
// duplicate merchant records into a survivor.
type MerchantsMergedMessage struct {
	Brand      string    `json:"brand"`
	SurvivorID string    `json:"survivor_id"`
	DeletedIDs []string  `json:"deleted_ids"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewMerchantsMergedMessage(brand, survivorID string, deletedIDs []string) *MerchantsMergedMessage {
	return &MerchantsMergedMessage{
		Brand:      brand,
		SurvivorID: survivorID,
		DeletedIDs: deletedIDs,
		Timestamp:  time.Now(),
	}
}

func (m *MerchantsMergedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func MerchantsMergedMessageFromJSON(data []byte) (*MerchantsMergedMessage, error) {
	var msg MerchantsMergedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

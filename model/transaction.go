package model

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

// TransactionID is the raw identifier of a platform transaction.
type TransactionID [16]byte

func GenerateTransactionID() (TransactionID, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return TransactionID{}, err
	}

	return TransactionID(id), nil
}

func MustGenerateTransactionID() TransactionID {
	id, err := GenerateTransactionID()
	if err != nil {
		panic(fmt.Sprintf("failed to generate transaction id: %v", err))
	}

	return id
}

func (id TransactionID) String() string {
	return base58.Encode(id[:])
}

func ParseTransactionID(s string) (TransactionID, error) {
	decoded, err := base58.Decode(s)
	if err != nil {
		return TransactionID{}, err
	}
	if len(decoded) != len(TransactionID{}) {
		return TransactionID{}, fmt.Errorf("invalid transaction id length: %d", len(decoded))
	}

	var id TransactionID
	copy(id[:], decoded)
	return id, nil
}

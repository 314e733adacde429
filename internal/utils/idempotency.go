package utils

import (
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// reservationDomainKey separates reservation idempotency keys from any other
// BLAKE3 use of the same input.
var reservationDomainKey = [32]byte{
	'e', 'v', 'r', 'e', 'n', 't', 'a', 'l', '.', 'r', 'e', 's', 'e', 'r', 'v', 'a',
	't', 'i', 'o', 'n', '.', 'i', 'd', 'e', 'm', 'p', 'o', 't', 'e', 'n', 'c', 'y',
}

// contractNamespace is the UUIDv5 namespace contract ids are derived in.
var contractNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:evrental:contract"))

// IdempotencyKey derives the key shared by every issuance attempt for a
// reservation. It is stable across processes and restarts.
func IdempotencyKey(reservationID string) string {
	hasher, err := blake3.NewKeyed(reservationDomainKey[:])
	if err != nil {
		panic("utils: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(reservationID))
	sum := hasher.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// ContractID derives the contract id for an idempotency key.
func ContractID(idempotencyKey string) string {
	return uuid.NewSHA1(contractNamespace, []byte(idempotencyKey)).String()
}

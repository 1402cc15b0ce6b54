package memstore

import (
	"errors"
	"fmt"
)

var (
	errTxAlreadyDone = errors.New("memstore: transaction already committed or rolled back")
	errBlockExists   = errors.New("memstore: block already exists at this chain and hash")
)

func joinTransferDelKey(blockHash string, chainID int64) string {
	return fmt.Sprintf("%s|%d", blockHash, chainID)
}

func splitTransferDelKey(key string) (string, int64) {
	var block string
	var chainID int64
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '|' {
			block = key[:i]
			fmt.Sscanf(key[i+1:], "%d", &chainID)
			break
		}
	}
	return block, chainID
}

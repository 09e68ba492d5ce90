package public

import "github.com/slushlabs/snowledger/foundation/chain/storage"

type actInfo struct {
	Account storage.AccountID `json:"account"`
	Balance uint64            `json:"balance"`
}

type accountsInfo struct {
	LatestBlock string    `json:"latest_block"`
	Uncommitted int       `json:"uncommitted"`
	Accounts    []actInfo `json:"accounts"`
}

type tx struct {
	FromAccount storage.AccountID `json:"from"`
	ToAccount   storage.AccountID `json:"to"`
	ChainID     uint16            `json:"chain_id"`
	Nonce       uint64            `json:"nonce"`
	Value       uint64            `json:"value"`
	Sig         string            `json:"sig"`
}

type block struct {
	Hash          string `json:"hash"`
	PrevBlockHash string `json:"prev_block_hash"`
	Number        uint64 `json:"number"`
	TransRoot     string `json:"trans_root"`
	TimeStamp     uint64 `json:"timestamp"`
	Transactions  []tx   `json:"txs"`
}

package storage

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/slushlabs/snowledger/foundation/chain/merkle"
	"github.com/slushlabs/snowledger/foundation/chain/signature"
)

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	PrevBlockHash string    `json:"prev_block_hash"` // Fingerprint of the previous block in the chain.
	Number        uint64    `json:"number"`          // Block number in the chain.
	TimeStamp     uint64    `json:"timestamp"`       // Time the block was proposed.
	TransRoot     string    `json:"trans_root"`      // Merkle tree root hash for the transactions in this block.
	BeneficiaryID AccountID `json:"beneficiary"`     // POW only: the account who mined the block.
	Difficulty    uint16    `json:"difficulty"`      // POW only: number of 0's needed to solve the hash solution.
	Nonce         uint64    `json:"nonce"`           // POW only: value identified to solve the hash solution.
}

// Block represents an ordered group of transactions batched together. The
// block's fingerprint is derived from the header, which covers the ordered
// transaction list through the merkle root and the predecessor fingerprint.
type Block struct {
	Header BlockHeader `json:"header"`
	Trans  []SignedTx  `json:"trans"`
}

// NewBlock constructs a block from the specified transactions referencing
// the previous block as its predecessor. This is the proposal path for the
// sampling consensus admission policy, so no work is performed.
func NewBlock(prevBlock Block, trans []SignedTx) (Block, error) {
	root := signature.ZeroHash
	if len(trans) > 0 {
		tree, err := merkle.NewTree(trans)
		if err != nil {
			return Block{}, err
		}
		root = tree.RootHex()
	}

	nb := Block{
		Header: BlockHeader{
			PrevBlockHash: prevBlock.Hash(),
			Number:        prevBlock.Header.Number + 1,
			TimeStamp:     uint64(time.Now().UTC().Unix()),
			TransRoot:     root,
		},
		Trans: trans,
	}

	return nb, nil
}

// POW constructs a new block and performs the work to find a nonce that
// solves the cryptographic puzzle. This is the alternate admission policy:
// the ledger does not care which policy admitted a block, it only requires
// a valid predecessor link.
func POW(ctx context.Context, beneficiaryID AccountID, difficulty uint16, prevBlock Block, trans []SignedTx, ev func(v string, args ...any)) (Block, error) {
	nb, err := NewBlock(prevBlock, trans)
	if err != nil {
		return Block{}, err
	}

	nb.Header.BeneficiaryID = beneficiaryID
	nb.Header.Difficulty = difficulty

	if err := nb.performPOW(ctx, ev); err != nil {
		return Block{}, err
	}

	return nb, nil
}

// performPOW does the work of mining to find a valid hash for a specified
// block. Pointer semantics are being used since a nonce is being discovered.
func (b *Block) performPOW(ctx context.Context, ev func(v string, args ...any)) error {
	ev("storage: performPOW: MINING: started")
	defer ev("storage: performPOW: MINING: completed")

	// Choose a random starting point for the nonce. After this, the nonce
	// will be incremented by 1 until a solution is found.
	nBig, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return err
	}
	b.Header.Nonce = nBig.Uint64()

	// Loop until a solution is found for the next block.
	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("storage: performPOW: MINING: attempts[%d]", attempts)
		}

		// Did we timeout trying to solve the problem.
		if ctx.Err() != nil {
			ev("storage: performPOW: MINING: CANCELLED")
			return ctx.Err()
		}

		// Hash the block and check if we have solved the puzzle.
		hash := b.Hash()
		if !isHashSolved(b.Header.Difficulty, hash) {
			b.Header.Nonce++
			continue
		}

		ev("storage: performPOW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]", b.Header.PrevBlockHash, hash)
		ev("storage: performPOW: MINING: attempts[%d]", attempts)

		return nil
	}
}

// Hash returns the unique fingerprint for the Block.
func (b Block) Hash() string {
	if b.Header.Number == 0 {
		return signature.ZeroHash
	}

	// Hashing the block header and not the whole block: the header covers
	// the transactions through the merkle root, so the chain can be
	// validated with headers alone.
	return signature.Hash(b.Header)
}

// ValidateBlock takes a block and validates it to be included into the chain.
func (b Block) ValidateBlock(previousBlock Block, evHandler func(v string, args ...any)) error {
	evHandler("storage: ValidateBlock: validate: blk[%d]: check: block number is the next number", b.Header.Number)

	nextNumber := previousBlock.Header.Number + 1
	if b.Header.Number != nextNumber {
		return fmt.Errorf("this block is not the next number, got %d, exp %d", b.Header.Number, nextNumber)
	}

	evHandler("storage: ValidateBlock: validate: blk[%d]: check: predecessor fingerprint does match previous block", b.Header.Number)

	if b.Header.PrevBlockHash != previousBlock.Hash() {
		return fmt.Errorf("predecessor fingerprint doesn't match our known tip, got %s, exp %s", b.Header.PrevBlockHash, previousBlock.Hash())
	}

	if b.Header.Difficulty > 0 {
		evHandler("storage: ValidateBlock: validate: blk[%d]: check: block hash has been solved", b.Header.Number)

		if !isHashSolved(b.Header.Difficulty, b.Hash()) {
			return fmt.Errorf("%s invalid block hash", b.Hash())
		}
	}

	if len(b.Trans) > 0 {
		evHandler("storage: ValidateBlock: validate: blk[%d]: check: merkle root does match transactions", b.Header.Number)

		tree, err := merkle.NewTree(b.Trans)
		if err != nil {
			return err
		}
		if b.Header.TransRoot != tree.RootHex() {
			return fmt.Errorf("merkle root does not match transactions, got %s, exp %s", tree.RootHex(), b.Header.TransRoot)
		}
	}

	return nil
}

// isHashSolved checks the hash to make sure it complies with
// the POW rules. We need to match a difficulty number of 0's.
func isHashSolved(difficulty uint16, hash string) bool {
	const match = "00000000000000000"

	if len(hash) != 66 {
		return false
	}

	return hash[2:2+difficulty] == match[:difficulty]
}

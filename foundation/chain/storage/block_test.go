package storage_test

import (
	"context"
	"crypto/ecdsa"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/slushlabs/snowledger/foundation/chain/signature"
	"github.com/slushlabs/snowledger/foundation/chain/storage"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func signTx(t *testing.T, nonce uint64, to string, value uint64) (storage.SignedTx, *ecdsa.PrivateKey) {
	t.Helper()

	pk, err := crypto.HexToECDSA("fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959")
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load the private key: %v", failed, err)
	}

	tx, err := storage.NewTx(1, nonce, storage.AccountID(to), value)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a transaction: %v", failed, err)
	}

	signedTx, err := tx.Sign(pk)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign a transaction: %v", failed, err)
	}

	return signedTx, pk
}

func TestBlockChaining(t *testing.T) {
	t.Log("Given the need to validate blocks link through their predecessor fingerprint.")
	{
		t.Log("\tTest 0:\tWhen constructing and validating a chain of two blocks.")
		{
			tx, _ := signTx(t, 1, "0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76", 100)

			genesisBlock := storage.Block{}
			if genesisBlock.Hash() != signature.ZeroHash {
				t.Fatalf("\t%s\tTest 0:\tShould fingerprint the bootstrap block as the zero hash.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould fingerprint the bootstrap block as the zero hash.", success)

			block1, err := storage.NewBlock(genesisBlock, []storage.SignedTx{tx})
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to construct block 1: %v", failed, err)
			}

			if block1.Header.Number != 1 || block1.Header.PrevBlockHash != signature.ZeroHash {
				t.Fatalf("\t%s\tTest 0:\tShould link block 1 to the bootstrap block.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould link block 1 to the bootstrap block.", success)

			if err := block1.ValidateBlock(genesisBlock, func(v string, args ...any) {}); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould validate block 1 against the bootstrap block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould validate block 1 against the bootstrap block.", success)

			block2, err := storage.NewBlock(block1, []storage.SignedTx{tx})
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to construct block 2: %v", failed, err)
			}

			if err := block2.ValidateBlock(genesisBlock, func(v string, args ...any) {}); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould refuse a block that skips a predecessor.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould refuse a block that skips a predecessor.", success)

			forged := block1
			forged.Header.TransRoot = signature.ZeroHash
			if err := forged.ValidateBlock(genesisBlock, func(v string, args ...any) {}); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould refuse a block whose merkle root does not match.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould refuse a block whose merkle root does not match.", success)
		}
	}
}

func TestPOW(t *testing.T) {
	t.Log("Given the need to validate the POW admission gate.")
	{
		t.Log("\tTest 0:\tWhen mining a block with a low difficulty.")
		{
			tx, _ := signTx(t, 1, "0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76", 100)
			ev := func(v string, args ...any) {}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			block, err := storage.POW(ctx, "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32", 1, storage.Block{}, []storage.SignedTx{tx}, ev)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to mine the block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to mine the block.", success)

			hash := block.Hash()
			if !strings.HasPrefix(hash, "0x0") {
				t.Fatalf("\t%s\tTest 0:\tShould produce a solved hash, got %s.", failed, hash)
			}
			t.Logf("\t%s\tTest 0:\tShould produce a solved hash.", success)

			if err := block.ValidateBlock(storage.Block{}, ev); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould validate the mined block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould validate the mined block.", success)
		}

		t.Log("\tTest 1:\tWhen the mining context is canceled.")
		{
			tx, _ := signTx(t, 1, "0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76", 100)
			ev := func(v string, args ...any) {}

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			// An unreachable difficulty so only the context can stop the loop.
			if _, err := storage.POW(ctx, "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32", 16, storage.Block{}, []storage.SignedTx{tx}, ev); err == nil {
				t.Fatalf("\t%s\tTest 1:\tShould stop mining when the context is canceled.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould stop mining when the context is canceled.", success)
		}
	}
}

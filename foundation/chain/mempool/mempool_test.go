package mempool_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/slushlabs/snowledger/foundation/chain/mempool"
	"github.com/slushlabs/snowledger/foundation/chain/storage"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func sign(hexKey string, nonce uint64, to string, value uint64) (storage.SignedTx, error) {
	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return storage.SignedTx{}, err
	}

	tx, err := storage.NewTx(1, nonce, storage.AccountID(to), value)
	if err != nil {
		return storage.SignedTx{}, err
	}

	return tx.Sign(pk)
}

func TestFIFOOrder(t *testing.T) {
	type table struct {
		name   string
		nonces []uint64
	}

	tt := []table{
		{
			name:   "arrival",
			nonces: []uint64{2, 3, 4, 1},
		},
	}

	t.Log("Given the need to validate the pending queue keeps arrival order.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a set of transactions.", testID)
			{
				f := func(t *testing.T) {
					mp := mempool.New()

					for _, nonce := range tst.nonces {
						tx, err := sign("fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959", nonce, "0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76", 100)
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould be able to sign transaction: %v", failed, testID, err)
						}
						t.Logf("\t%s\tTest %d:\tShould be able to sign transaction.", success, testID)

						mp.Upsert(tx)
						t.Logf("\t%s\tTest %d:\tShould be able to add new transaction: %s", success, testID, tx.UniqueKey())
					}

					for i, tx := range mp.Copy() {
						if tx.Nonce != tst.nonces[i] {
							t.Logf("\t%s\tTest %d:\tgot: %d", failed, testID, tx.Nonce)
							t.Logf("\t%s\tTest %d:\texp: %d", failed, testID, tst.nonces[i])
							t.Fatalf("\t%s\tTest %d:\tShould keep the transactions in arrival order.", failed, testID)
						}
					}
					t.Logf("\t%s\tTest %d:\tShould keep the transactions in arrival order.", success, testID)

					if mp.Count() != len(tst.nonces) {
						t.Fatalf("\t%s\tTest %d:\tShould have the right pending count, got %d, exp %d.", failed, testID, mp.Count(), len(tst.nonces))
					}
					t.Logf("\t%s\tTest %d:\tShould have the right pending count.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func TestCheckoutRestore(t *testing.T) {
	t.Log("Given the need to validate checkout and restore semantics.")
	{
		t.Log("\tTest 0:\tWhen checking out a batch and restoring it.")
		{
			mp := mempool.New()

			var txs []storage.SignedTx
			for nonce := uint64(1); nonce <= 4; nonce++ {
				tx, err := sign("fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959", nonce, "0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76", 100)
				if err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to sign transaction: %v", failed, err)
				}
				txs = append(txs, tx)
				mp.Upsert(tx)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to add four transactions.", success)

			batch := mp.Checkout(2)
			if len(batch) != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould check out two transactions, got %d.", failed, len(batch))
			}
			t.Logf("\t%s\tTest 0:\tShould check out two transactions.", success)

			if batch[0].Nonce != 1 || batch[1].Nonce != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould check out the two oldest transactions, got %d and %d.", failed, batch[0].Nonce, batch[1].Nonce)
			}
			t.Logf("\t%s\tTest 0:\tShould check out the two oldest transactions.", success)

			if mp.Count() != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould remove checked out transactions from the queue, count %d.", failed, mp.Count())
			}
			t.Logf("\t%s\tTest 0:\tShould remove checked out transactions from the queue.", success)

			mp.Restore(batch)
			if mp.Count() != 4 {
				t.Fatalf("\t%s\tTest 0:\tShould restore the batch, count %d.", failed, mp.Count())
			}
			t.Logf("\t%s\tTest 0:\tShould restore the batch.", success)

			for i, tx := range mp.Copy() {
				if tx.Nonce != txs[i].Nonce {
					t.Fatalf("\t%s\tTest 0:\tShould restore to the front of the queue, got nonce %d at %d.", failed, tx.Nonce, i)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould restore to the front of the queue.", success)

			all := mp.Checkout(-1)
			if len(all) != 4 || mp.Count() != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould check out everything with -1, got %d left %d.", failed, len(all), mp.Count())
			}
			t.Logf("\t%s\tTest 0:\tShould check out everything with -1.", success)
		}
	}
}

func TestUpsertDedupe(t *testing.T) {
	t.Log("Given the need to validate duplicate submissions keep their original position.")
	{
		t.Log("\tTest 0:\tWhen submitting the same transaction twice.")
		{
			mp := mempool.New()

			tx1, err := sign("fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959", 1, "0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76", 100)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sign transaction: %v", failed, err)
			}
			tx2, err := sign("fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959", 2, "0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76", 100)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sign transaction: %v", failed, err)
			}

			mp.Upsert(tx1)
			mp.Upsert(tx2)
			mp.Upsert(tx1)

			if mp.Count() != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould not grow the queue on a duplicate, count %d.", failed, mp.Count())
			}
			t.Logf("\t%s\tTest 0:\tShould not grow the queue on a duplicate.", success)

			if mp.Copy()[0].Nonce != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould keep the original position for a duplicate.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the original position for a duplicate.", success)
		}
	}
}

package cmd

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/slushlabs/snowledger/foundation/chain/storage"
	"github.com/spf13/cobra"
)

var (
	url     string
	chainID uint16
	nonce   uint64
	to      string
	value   uint64
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Sign and send a transaction",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}

		sendWithDetails(privateKey)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
	sendCmd.Flags().Uint16VarP(&chainID, "chain", "c", 1, "Chain id from the genesis file.")
	sendCmd.Flags().Uint64VarP(&nonce, "nonce", "n", 0, "Unique id for the transaction.")
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Account receiving the value.")
	sendCmd.Flags().Uint64VarP(&value, "value", "v", 0, "Value to send.")
}

func sendWithDetails(privateKey *ecdsa.PrivateKey) {
	toID, err := storage.ToAccountID(to)
	if err != nil {
		log.Fatal(err)
	}

	tx, err := storage.NewTx(chainID, nonce, toID, value)
	if err != nil {
		log.Fatal(err)
	}

	signedTx, err := tx.Sign(privateKey)
	if err != nil {
		log.Fatal(err)
	}

	data, err := json.Marshal(signedTx)
	if err != nil {
		log.Fatal(err)
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", url), "application/json", bytes.NewBuffer(data))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(body))
}

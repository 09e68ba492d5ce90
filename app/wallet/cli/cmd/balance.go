package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/slushlabs/snowledger/foundation/chain/storage"
	"github.com/spf13/cobra"
)

type account struct {
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
}

type accounts struct {
	LatestBlock string    `json:"latest_block"`
	Uncommitted int       `json:"uncommitted"`
	Accounts    []account `json:"accounts"`
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance",
	Run:   balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
}

func balanceRun(cmd *cobra.Command, args []string) {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	accountID := storage.PublicKeyToAccountID(privateKey.PublicKey)
	fmt.Println("For Account:", accountID)

	resp, err := http.Get(fmt.Sprintf("%s/v1/accounts/list/%s", url, accountID))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	var accounts accounts
	if err := json.NewDecoder(resp.Body).Decode(&accounts); err != nil {
		log.Fatal(err)
	}

	if len(accounts.Accounts) > 0 {
		fmt.Println(accounts.Accounts[0].Balance)
	}
}

package pgrest

import (
	"context"
	"encoding/json"
	"log"

	"github.com/spf13/cobra"
)

var rpcCmd = &cobra.Command{
	Use:   "rpc <function> [json-args]",
	Short: "Call a stored procedure",
	Long:  `Calls a database function exposed under /rpc and prints its result as JSON`,
	Args:  cobra.RangeArgs(1, 2),
	Run:   runRPC,
}

func init() {
	rootCmd.AddCommand(rpcCmd)
}

func runRPC(cmd *cobra.Command, args []string) {
	c, err := buildClient()
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	var fnArgs any
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &fnArgs); err != nil {
			log.Fatalf("Invalid JSON args: %v", err)
		}
	}

	res, err := c.Rpc(args[0], fnArgs).Execute(context.Background())
	if err != nil {
		log.Fatalf("RPC failed: %v", err)
	}
	if res.Err != nil {
		log.Fatalf("RPC failed: %v", res.Err)
	}
	printJSON(res.Data)
}

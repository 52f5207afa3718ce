// Command memocache memoizes the output of shell commands in a memocache
// backing store.
//
//	memocache get --group prices --expire 1h price-EUR -- curl -s https://rates.example/eur
//	memocache flush-group prices
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

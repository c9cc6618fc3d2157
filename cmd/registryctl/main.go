// Command registryctl is the operator tool for the schema registry: preview
// DDL for schema files, load definitions, rebuild the read model and mint
// development tokens.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

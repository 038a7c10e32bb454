// Command rag is the entry point for the document question-answering
// service. It provides a CLI (via Cobra) for ingesting and querying
// documents, and an HTTP server with a streaming chat API.
package main

import (
	"fmt"
	"os"

	"github.com/SebastianCielma/RAG/cmd/rag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

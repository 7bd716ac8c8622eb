// Command ingestd is the operator-driven control plane for the catchup-feed
// ingestion engine: catalog loading, one-shot collection cycles, and ingest
// reporting. The long-running scheduler lives in cmd/worker.
package main

import "catchup-feed/internal/cli"

func main() {
	cli.Execute()
}

// Command fargate-exec runs code files in a one-off AWS Fargate task.
package main

import (
	"os"

	"github.com/sakif/fargate-executor/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}

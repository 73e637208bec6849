package main

import (
	"os"

	"github.com/mrxnn/meetscribe/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}

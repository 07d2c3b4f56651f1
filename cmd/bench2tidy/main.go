// Command bench2tidy merges raw bench-<host>.csv files into one tidy CSV.
package main

import (
	"github.com/rileyhilliard/pb/internal/cli"
)

func main() {
	cli.ExecuteTidy()
}

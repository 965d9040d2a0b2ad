package main

import "github.com/TemirB/shop-orders/internal/cli"

func main() {
	cli.Execute()
}

package main

import "github.com/vietddude/georetry/internal/cli"

func main() {
	cli.Execute()
}

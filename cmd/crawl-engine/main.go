package main

import cmd "github.com/rohmanhakim/crawl-engine/internal/cli"

func main() {
	cmd.Execute()
}

package main

import (
	"time"

	"plansync/cli"
)

func main() {
	cli.Execute(time.Now())
}

package main

import (
	"os"

	"horse.fit/crosslink/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}

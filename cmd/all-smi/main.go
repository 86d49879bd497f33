package main

import (
	"fmt"
	"os"

	"github.com/all-smi/all-smi/pkg/app"
)

func main() {
	allSMIApp, err := app.New()
	if err != nil {
		panic("Failed to create an instance of all-smi App")
	}

	if err := allSMIApp.Main(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

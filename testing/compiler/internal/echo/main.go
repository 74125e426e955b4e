package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Printf("%s: %v\n", os.Getenv("ECHO_NAME"), os.Args[1:])
}

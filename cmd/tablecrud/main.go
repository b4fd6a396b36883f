// Package main is the entry point for tablecrud.
package main

func main() {
	Execute()
}

/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/valri11/usagedecoder/cmd"

func main() {
	cmd.Execute()
}

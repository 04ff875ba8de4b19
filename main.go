/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "mosaic/cmd"

func main() {
	cmd.Execute()
}

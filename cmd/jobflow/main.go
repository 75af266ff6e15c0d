// Package main provides the entry point for the jobflow CLI.
package main

import "yqhp/jobflow/cmd"

func main() {
	cmd.Execute()
}

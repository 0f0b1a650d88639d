package main

import "github.com/AnatoleLucet/render/cmd/render/internal/command"

func main() {
	command.Execute()
}

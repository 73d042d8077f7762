package main

import "zonafiscal/internal/app/server"

func main() {
	server.Run()
}

package main

import (
	"log"
	"net/http"
	"os"

	"github.com/harborlight-ed/harborlight/internal/server"
)

func main() {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	log.Printf("listening on %s", addr)
	if err := http.ListenAndServe(addr, server.MustNewHandler()); err != nil {
		log.Fatal(err)
	}
}

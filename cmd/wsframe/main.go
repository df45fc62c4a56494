package main

import (
	"bufio"
	"fmt"
	"os"

	"bazaar/internal/ws"
)

// wsframe decodes websocket frames, one JSON document per line on stdin,
// and prints the resulting events. Handy for checking captured traffic.
func main() {
	if len(os.Args) != 1 {
		fmt.Println("Usage: wsframe < frames.jsonl")
		os.Exit(1)
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	failed := 0
	for line := 1; scanner.Scan(); line++ {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		ev, err := ws.Decode(raw)
		if err != nil {
			failed++
			fmt.Printf("%d: error: %v\n", line, err)
			continue
		}
		fmt.Printf("%d: %T %+v\n", line, ev, ev)
	}
	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading input: %v\n", err)
		os.Exit(1)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

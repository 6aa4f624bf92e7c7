package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// logLine holds the fields the gateway writes on retries and failures.
type logLine struct {
	Msg        string `json:"msg"`
	Method     string `json:"method"`
	Operation  string `json:"operation"`
	Instrument string `json:"instrument"`
	Kind       string `json:"kind"`
	Reason     string `json:"reason"`
	Error      string `json:"error"`
}

type counter map[string]int

func (c counter) print(title string) {
	if len(c) == 0 {
		return
	}
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return c[keys[i]] > c[keys[j]] })

	fmt.Printf("\n%s\n", title)
	for _, k := range keys {
		fmt.Printf("  %-45s %d\n", k, c[k])
	}
}

func main() {
	path := "logs/gateway.log"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	file, err := os.Open(path)
	if err != nil {
		fmt.Printf("Error opening file: %v\n", err)
		return
	}
	defer file.Close()

	fmt.Printf("Analyzing file: %s\n", path)

	retries := counter{}
	failures := counter{}
	rejections := counter{}
	journal := counter{}
	lines, skipped := 0, 0

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines++
		var l logLine
		if err := json.Unmarshal(scanner.Bytes(), &l); err != nil {
			skipped++
			continue
		}
		switch l.Msg {
		case "retrying rpc call":
			retries[l.Method]++
		case "operation failed":
			failures[l.Operation+" "+l.Kind+":"+l.Reason]++
		case "order rejected locally":
			rejections[l.Instrument]++
		case "journal write failed", "journal update failed":
			journal[l.Error]++
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading file: %v\n", err)
	}

	fmt.Printf("Lines: %d (skipped %d non-JSON)\n", lines, skipped)
	retries.print("Retries by method:")
	failures.print("Failed operations (HTTP surface):")
	rejections.print("Orders rejected locally by instrument:")
	journal.print("Journal errors:")
}

package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"
)

// Concurrency smoke for the proxy: many simultaneous requests for the same
// coordinates must converge on a single mint and a single upstream fetch.
// Run it against a local instance, watch the summary log for mint counts.

const concur = 200

func main() {
	base := os.Getenv("PROXY_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	target, err := url.Parse(base)
	if err != nil {
		fmt.Println("bad PROXY_URL:", err)
		os.Exit(1)
	}
	q := target.Query()
	q.Set("lat", "40.7128")
	q.Set("lng", "-74.0060")
	target.RawQuery = q.Encode()

	fmt.Println("Hitting:", target.String())

	for round := 0; round < 5; round++ {
		run(target.String())
	}
}

func run(fullURL string) {
	client := &http.Client{Timeout: 10 * time.Second}
	statuses := make(map[int]int)

	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(concur)

	start := time.Now()
	for i := 0; i < concur; i++ {
		go func() {
			defer wg.Done()
			code, err := callAPI(client, fullURL)
			if err != nil {
				fmt.Println("Error calling API:", err)
				return
			}
			mu.Lock()
			statuses[code]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	fmt.Printf("%d calls in %v, statuses: %v\n", concur, time.Since(start), statuses)
}

func callAPI(client *http.Client, fullURL string) (int, error) {
	req, err := http.NewRequest(http.MethodGet, fullURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Origin", "http://localhost:3000")

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

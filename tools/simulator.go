package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"
)

type response struct {
	Anomalies map[string]bool    `json:"anomalies"`
	Corrected map[string]float64 `json:"corrected"`
}

type stats struct {
	sent      int
	failed    int
	injected  int
	flagged   int
	latencies []time.Duration
}

func main() {
	url := flag.String("url", "http://localhost:8000/process", "processing endpoint")
	interval := flag.Duration("interval", 5*time.Second, "delay between readings")
	count := flag.Int("count", 0, "number of readings to send (0 = until interrupted)")
	spikeChance := flag.Float64("spike", 0.3, "probability of injecting an out-of-range value")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	client := &http.Client{Timeout: 10 * time.Second}

	fmt.Printf("Simulator Configuration:\n")
	fmt.Printf("  URL:      %s\n", *url)
	fmt.Printf("  Interval: %v\n", *interval)
	fmt.Printf("  Spike:    %.0f%%\n\n", *spikeChance*100)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	var st stats
	startTime := time.Now()
	for counter := 0; *count == 0 || counter < *count; counter++ {
		reading, injected := generateReading(rng, counter, *spikeChance, startTime)
		if injected {
			st.injected++
		}
		send(client, *url, reading, &st)

		if *count != 0 && counter+1 >= *count {
			break
		}
		select {
		case <-ticker.C:
		case <-quit:
			printResults(&st, time.Since(startTime))
			return
		}
	}

	printResults(&st, time.Since(startTime))
}

// generateReading mirrors the device firmware: normal values with an
// occasional physically impossible spike on one field.
func generateReading(rng *rand.Rand, counter int, spikeChance float64, start time.Time) (map[string]any, bool) {
	reading := map[string]any{
		"counter":     counter,
		"temperature": 20.0 + float64(rng.Intn(100))/10.0,
		"humidity":    40.0 + float64(rng.Intn(400))/10.0,
		"light":       rng.Intn(1024),
		"timestamp":   time.Since(start).Milliseconds(),
	}

	if rng.Float64() >= spikeChance {
		return reading, false
	}

	switch rng.Intn(3) {
	case 0:
		reading["temperature"] = pick(rng, 85.5, -15.0)
	case 1:
		reading["humidity"] = pick(rng, 120.0, 5.0)
	default:
		reading["light"] = 2000
	}
	return reading, true
}

func pick(rng *rand.Rand, a, b float64) float64 {
	if rng.Intn(2) == 0 {
		return a
	}
	return b
}

func send(client *http.Client, url string, reading map[string]any, st *stats) {
	jsonData, _ := json.Marshal(reading)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(jsonData))
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	st.sent++

	if err != nil {
		st.failed++
		fmt.Printf("request failed: %v\n", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		st.failed++
		fmt.Printf("unexpected status: %d\n", resp.StatusCode)
		return
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		st.failed++
		fmt.Printf("invalid response: %v\n", err)
		return
	}

	st.latencies = append(st.latencies, latency)
	for field, flagged := range out.Anomalies {
		if flagged {
			st.flagged++
			fmt.Printf("[ANOMALY] %s raw=%v corrected=%.2f\n", field, reading[field], out.Corrected[field])
		}
	}
}

func printResults(st *stats, duration time.Duration) {
	var p50, p95, p99 time.Duration
	if len(st.latencies) > 0 {
		sorted := append([]time.Duration(nil), st.latencies...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		p50 = sorted[len(sorted)*50/100]
		p95 = sorted[len(sorted)*95/100]
		p99 = sorted[len(sorted)*99/100]
	}

	fmt.Println("\n==========================================")
	fmt.Println("Simulator Results")
	fmt.Println("==========================================")
	fmt.Printf("Duration:         %v\n", duration.Round(time.Millisecond))
	fmt.Printf("Readings sent:    %d\n", st.sent)
	fmt.Printf("Failed:           %d\n", st.failed)
	fmt.Printf("Spikes injected:  %d\n", st.injected)
	fmt.Printf("Fields flagged:   %d\n", st.flagged)
	fmt.Println("\nLatency Statistics:")
	fmt.Printf("  p50:            %v\n", p50)
	fmt.Printf("  p95:            %v\n", p95)
	fmt.Printf("  p99:            %v\n", p99)
	fmt.Println("==========================================")
}

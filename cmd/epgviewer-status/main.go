package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

var (
	port       = flag.String("port", "3333", "server port")
	host       = flag.String("host", "localhost", "server host")
	playlist   = flag.String("playlist", "", "playlist URL to build an export for")
	epg        = flag.String("epg", "", "EPG URL override")
	pastDays   = flag.Int("past-days", 0, "days of history to include")
	futureDays = flag.Int("future-days", 3, "days of future schedule to include")
	full       = flag.Bool("full", false, "ignore pastDays/futureDays and build the full window")
	poll       = flag.Duration("poll", 2*time.Second, "status poll interval")
)

type prewarmResponse struct {
	Key       string `json:"key"`
	Started   bool   `json:"started"`
	ExportURL string `json:"exportUrl"`
}

type statusResponse struct {
	Status     string `json:"status"`
	Percent    int    `json:"percent"`
	Message    string `json:"message,omitempty"`
	ExportURL  string `json:"export_url,omitempty"`
	FinishedAt int64  `json:"finished_at,omitempty"`
}

func main() {
	flag.Parse()

	base := fmt.Sprintf("http://%s:%s", *host, *port)

	body, err := json.Marshal(map[string]any{
		"pastDays":   *pastDays,
		"futureDays": *futureDays,
		"playlist":   *playlist,
		"epg":        *epg,
		"full":       *full,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal prewarm request: %v\n", err)
		os.Exit(1)
	}

	resp, err := http.Post(base+"/api/export/prewarm", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "prewarm request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read prewarm response: %v\n", err)
		os.Exit(1)
	}

	var pw prewarmResponse
	if err := json.Unmarshal(respBody, &pw); err != nil {
		fmt.Fprintf(os.Stderr, "parse prewarm response: %v\n%s\n", err, respBody)
		os.Exit(1)
	}

	fmt.Printf("prewarm started: key=%s\n", pw.Key)

	for {
		status, err := fetchStatus(base, pw.Key)
		if err != nil {
			fmt.Fprintf(os.Stderr, "poll status: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("status=%s percent=%d%% %s\n", status.Status, status.Percent, status.Message)

		switch status.Status {
		case "done":
			fmt.Printf("export ready: %s%s\n", base, status.ExportURL)
			return
		case "error":
			fmt.Fprintf(os.Stderr, "export failed: %s\n", status.Message)
			os.Exit(1)
		}

		time.Sleep(*poll)
	}
}

func fetchStatus(base, key string) (statusResponse, error) {
	resp, err := http.Get(base + "/api/export/status?key=" + key)
	if err != nil {
		return statusResponse{}, err
	}
	defer resp.Body.Close()

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return statusResponse{}, err
	}
	return status, nil
}

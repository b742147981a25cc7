// Package main runs a demo client: it enqueues an async solve and streams its progress
// over WebSocket until the solve finishes.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"

	"github.com/gorilla/websocket"
)

const demoProblem = `{
	"problem": {
		"fleet": [
			{"key": "truck-1", "fryerOil": 2000, "startAt": 200, "endBy": 1400},
			{"key": "truck-2", "greaseTrap": 1500, "fryerOil": 500, "startAt": 200, "endBy": 1400}
		],
		"requests": [
			{"key": "r1", "location": {"latitude": 33.91, "longitude": -118.12}, "serviceType": "fryerOil", "materialCost": 300, "timeCost": 20},
			{"key": "r2", "location": {"latitude": 34.05, "longitude": -118.24}, "serviceType": "greaseTrap", "materialCost": 700, "timeCost": 45},
			{"key": "r3", "location": {"latitude": 33.77, "longitude": -118.19}, "serviceType": "fryerOil", "materialCost": 150, "timeCost": 10,
			 "timeWindow": {"start": 400, "end": 900}},
			{"key": "r4", "location": {"latitude": 34.14, "longitude": -118.02}, "serviceType": "greaseTrap", "materialCost": 900, "timeCost": 60}
		]
	},
	"options": {"maxIterations": 2000, "seed": 42}
}`

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	resp, err := http.Post(base+"/v1/solves", "application/json", bytes.NewReader([]byte(demoProblem)))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted {
		log.Fatalf("enqueue: unexpected status %s", resp.Status)
	}
	var queued struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&queued); err != nil {
		log.Fatal(err)
	}
	log.Printf("Solve ID: %s", queued.ID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/solves/" + queued.ID + "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	for {
		var evt struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := c.ReadJSON(&evt); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Printf("read: %v", err)
			}
			break
		}
		log.Printf("WS <- %s: %s", evt.Type, string(evt.Data))
	}

	res, err := http.Get(base + "/v1/solves/" + queued.ID)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = res.Body.Close() }()
	var rec map[string]any
	if err := json.NewDecoder(res.Body).Decode(&rec); err != nil {
		log.Fatal(err)
	}
	out, _ := json.MarshalIndent(rec["response"], "", "  ")
	log.Printf("status=%v\n%s", rec["status"], out)
}

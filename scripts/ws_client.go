// Package main runs a demo WebSocket client that prints released batches.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"pickbatch/internal/sink"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/releases/stream"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var r sink.Release
			if err := c.ReadJSON(&r); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- batch %s (%s): orders=%v items=%d length=%d arrival=%s",
				r.BatchID, r.Trigger, r.OrderIDs, r.ItemCount, r.TourLength, r.ArrivalAt.Format(time.TimeOnly))
		}
	}()

	// Submit a last order so the service releases it right away
	items := os.Args[1:]
	if len(items) == 0 {
		items = []string{"1"}
	}
	body := map[string]any{"orderId": fmt.Sprintf("demo-%d", time.Now().Unix())}
	var list []map[string]string
	for _, id := range items {
		list = append(list, map[string]string{"itemId": id})
	}
	body["items"] = list
	b, _ := json.Marshal(body)
	resp, err := http.Post(base+"/v1/orders/last", "application/json", bytes.NewReader(b))
	if err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("POST /v1/orders/last -> %s", resp.Status)

	// Wait briefly to receive a few messages
	select {
	case <-time.After(5 * time.Second):
	case <-done:
	}
}

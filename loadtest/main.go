package main

import (
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type frame struct {
	Type    string `json:"type"`
	Group   string `json:"group,omitempty"`
	Name    string `json:"name,omitempty"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

var (
	wsURL       = flag.String("url", "ws://localhost:8080/groupChat", "group chat websocket endpoint")
	groups      = flag.Int("groups", 50, "number of groups")
	perGroup    = flag.Int("users", 4, "users per group")
	msgCount    = flag.Int("messages", 20, "messages per user")
	assistEvery = flag.Int("assistant-every", 10, "every n-th message asks the assistant (0 disables)")
	linger      = flag.Duration("linger", 5*time.Second, "how long to keep reading after the last send")
)

var (
	sent     atomic.Int64
	received atomic.Int64
	failures atomic.Int64
)

func main() {
	flag.Parse()
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	log.Info().Int("groups", *groups).Int("users", *groups**perGroup).Int("messages", *msgCount).Msg("starting load test")
	start := time.Now()

	var wg sync.WaitGroup
	for g := 0; g < *groups; g++ {
		for u := 0; u < *perGroup; u++ {
			wg.Add(1)
			go func(group, user int) {
				defer wg.Done()
				runUser(log, fmt.Sprintf("g_%d", group), fmt.Sprintf("u_%d_%d", group, user))
			}(g, u)
		}
	}
	wg.Wait()

	log.Info().
		Dur("elapsed", time.Since(start)).
		Int64("sent", sent.Load()).
		Int64("received", received.Load()).
		Int64("failures", failures.Load()).
		Msg("load test complete")
}

func runUser(log zerolog.Logger, group, user string) {
	conn, _, err := websocket.DefaultDialer.Dial(*wsURL, nil)
	if err != nil {
		failures.Add(1)
		log.Error().Err(err).Str("user", user).Msg("websocket connect failed")
		return
	}
	defer conn.Close()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Type == "error" {
				failures.Add(1)
				log.Warn().Str("user", user).Str("error", f.Message).Msg("server error frame")
				continue
			}
			received.Add(1)
		}
	}()

	if err := conn.WriteJSON(frame{Type: "joinGroup", Group: group}); err != nil {
		failures.Add(1)
		log.Error().Err(err).Str("user", user).Msg("join failed")
		return
	}

	for i := 0; i < *msgCount; i++ {
		text := fmt.Sprintf("LoadTest msg %d from %s", i, user)
		if *assistEvery > 0 && i%*assistEvery == *assistEvery-1 {
			text = "@gpt reply with one short sentence"
		}
		if err := conn.WriteJSON(frame{Type: "chat", Name: user, Message: text}); err != nil {
			failures.Add(1)
			log.Error().Err(err).Str("user", user).Msg("send failed")
			break
		}
		sent.Add(1)
		// Small sleep to simulate a real network
		time.Sleep(10 * time.Millisecond)
	}

	_ = conn.SetReadDeadline(time.Now().Add(*linger))
	<-readDone
}

// Command loadtest drives a mensageiro server with synthetic user
// pairs that befriend each other and exchange messages at a fixed
// rate, reporting throughput while it runs.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/mensageiro/mensageiro/pkg/client"
)

var phrases = []string{
	"oi, tudo bem?",
	"viu a mensagem que te mandei?",
	"almoço hoje?",
	"manda o link depois",
	"haha boa",
	"to saindo agora",
	"me liga quando puder",
	"beleza, combinado",
}

type stats struct {
	messagesSent   atomic.Uint64
	wizzesSent     atomic.Uint64
	pushesReceived atomic.Uint64
	errors         atomic.Uint64
	activePairs    atomic.Int64
	setupFailures  atomic.Uint64
}

func main() {
	server := flag.String("server", "127.0.0.1:8087", "Server address")
	pairs := flag.Int("pairs", 10, "Number of chatting user pairs")
	rate := flag.Float64("rate", 1.0, "Messages per second per sender")
	wizzEvery := flag.Int("wizz-every", 20, "Send a wizz every N messages (0 = never)")
	duration := flag.Duration("duration", 60*time.Second, "Test duration")
	flag.Parse()

	log.Printf("Load test: %d pairs against %s for %v at %.1f msg/s each", *pairs, *server, *duration, *rate)

	var st stats
	done := make(chan struct{})
	var wg sync.WaitGroup

	runID := time.Now().UnixNano()
	for i := 0; i < *pairs; i++ {
		wg.Add(1)
		go func(pairIndex int) {
			defer wg.Done()
			runPair(&st, *server, runID, pairIndex, *rate, *wizzEvery, done)
		}(i)
	}

	// Periodic stats reporting
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	deadline := time.After(*duration)

	start := time.Now()
loop:
	for {
		select {
		case <-ticker.C:
			elapsed := time.Since(start).Seconds()
			sent := st.messagesSent.Load()
			log.Printf("pairs=%d sent=%d (%.1f/s) wizzes=%d pushes=%d errors=%d",
				st.activePairs.Load(), sent, float64(sent)/elapsed,
				st.wizzesSent.Load(), st.pushesReceived.Load(), st.errors.Load())
		case <-deadline:
			break loop
		case sig := <-sigCh:
			log.Printf("Received %v, stopping", sig)
			break loop
		}
	}

	close(done)
	wg.Wait()

	elapsed := time.Since(start).Seconds()
	fmt.Printf("\n--- results ---\n")
	fmt.Printf("duration:        %.1fs\n", elapsed)
	fmt.Printf("messages sent:   %d (%.1f/s)\n", st.messagesSent.Load(), float64(st.messagesSent.Load())/elapsed)
	fmt.Printf("wizzes sent:     %d\n", st.wizzesSent.Load())
	fmt.Printf("pushes received: %d\n", st.pushesReceived.Load())
	fmt.Printf("errors:          %d\n", st.errors.Load())
	fmt.Printf("setup failures:  %d\n", st.setupFailures.Load())
	if st.errors.Load() > 0 || st.setupFailures.Load() > 0 {
		os.Exit(1)
	}
}

// runPair registers two fresh accounts, makes them friends, and chats
// between them until done closes.
func runPair(st *stats, server string, runID int64, pairIndex int, rate float64, wizzEvery int, done <-chan struct{}) {
	alice, _, err := connectUser(server, fmt.Sprintf("lt-%d-%d-a@example.com", runID, pairIndex))
	if err != nil {
		st.setupFailures.Add(1)
		log.Printf("pair %d: %v", pairIndex, err)
		return
	}
	defer alice.Close()

	bob, bobID, err := connectUser(server, fmt.Sprintf("lt-%d-%d-b@example.com", runID, pairIndex))
	if err != nil {
		st.setupFailures.Add(1)
		log.Printf("pair %d: %v", pairIndex, err)
		return
	}
	defer bob.Close()

	// Count every push either side receives, for the whole pair.
	countEvents := func(c *client.Connection) {
		for range c.Events() {
			st.pushesReceived.Add(1)
		}
	}
	go countEvents(alice)
	go countEvents(bob)

	invite, err := alice.AddFriend(fmt.Sprintf("lt-%d-%d-b@example.com", runID, pairIndex), "loadtest")
	if err != nil {
		st.setupFailures.Add(1)
		log.Printf("pair %d: add_friend: %v", pairIndex, err)
		return
	}
	if err := bob.AcceptFriend(invite.RequestID); err != nil {
		st.setupFailures.Add(1)
		log.Printf("pair %d: accept_friend: %v", pairIndex, err)
		return
	}

	convID, err := alice.OpenConversation(bobID)
	if err != nil {
		st.setupFailures.Add(1)
		log.Printf("pair %d: open_conversation: %v", pairIndex, err)
		return
	}
	st.activePairs.Add(1)
	defer st.activePairs.Add(-1)

	interval := time.Duration(float64(time.Second) / rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	senders := []*client.Connection{alice, bob}
	count := 0
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			sender := senders[count%2]
			count++
			if wizzEvery > 0 && count%wizzEvery == 0 {
				if err := sender.Wizz(convID); err != nil {
					st.errors.Add(1)
				} else {
					st.wizzesSent.Add(1)
				}
				continue
			}
			if _, err := sender.Chat(convID, phrases[rand.Intn(len(phrases))]); err != nil {
				st.errors.Add(1)
			} else {
				st.messagesSent.Add(1)
			}
		}
	}
}

// connectUser registers a fresh account and logs it in, returning the
// live connection and the account's user id.
func connectUser(server, email string) (*client.Connection, int64, error) {
	c := client.NewConnection(server)
	c.SetAutoReconnect(false)
	if err := c.Connect(); err != nil {
		return nil, 0, err
	}
	if _, err := c.Register("Load Tester", email, "loadtest-password"); err != nil {
		c.Close()
		return nil, 0, fmt.Errorf("register %s: %w", email, err)
	}
	resp, err := c.Login(email, "loadtest-password")
	if err != nil {
		c.Close()
		return nil, 0, fmt.Errorf("login %s: %w", email, err)
	}
	return c, resp.User.ID, nil
}

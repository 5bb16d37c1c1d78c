// rawrtc-chat is a copy/paste signaling demo for pkg/rawrtc.
//
// Two instances exchange base64-encoded session descriptions by hand
// (over whatever side channel the operator has: a chat message, a
// pastebin, a phone call read aloud) and then send unordered,
// unreliable text messages over a single data channel once the ICE,
// DTLS, and SCTP handshakes complete.
//
// Usage:
//
//	rawrtc-chat -role offer
//	rawrtc-chat -role answer
//
// Options:
//
//	-role   offer or answer (required)
//	-label  data channel label (default: "chat")
//	-stun   STUN server URL, repeatable (default: none)
package main

import (
	"bufio"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rawrtc/rawrtc/pkg/ice"
	"github.com/rawrtc/rawrtc/pkg/rawrtc"
)

type stunList []string

func (s *stunList) String() string { return strings.Join(*s, ",") }
func (s *stunList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	role := flag.String("role", "", "offer or answer")
	label := flag.String("label", "chat", "data channel label")
	var stunURLs stunList
	flag.Var(&stunURLs, "stun", "STUN server URL, repeatable")
	flag.Parse()

	if *role != "offer" && *role != "answer" {
		fmt.Fprintln(os.Stderr, "Usage: rawrtc-chat -role offer|answer")
		flag.PrintDefaults()
		os.Exit(2)
	}

	var servers []rawrtc.ICEServer
	for _, u := range stunURLs {
		servers = append(servers, rawrtc.ICEServer{URLs: []string{u}})
	}

	pc, err := rawrtc.New(rawrtc.Configuration{ICEServers: servers})
	if err != nil {
		log.Fatalf("create peer connection: %v", err)
	}
	defer pc.Close()

	pc.OnICEConnectionStateChange(func(s ice.ConnectionState) {
		log.Printf("ice connection state: %s", s)
	})
	pc.OnConnectionStateChange(func(s rawrtc.ConnectionState) {
		log.Printf("connection state: %s", s)
	})

	stdin := bufio.NewReader(os.Stdin)

	switch *role {
	case "offer":
		runOfferer(pc, *label, stdin)
	case "answer":
		runAnswerer(pc, stdin)
	}

	waitForSignal()
}

func runOfferer(pc *rawrtc.PeerConnection, label string, stdin *bufio.Reader) {
	waitForGatheringComplete(pc)

	offer, err := pc.CreateOffer()
	if err != nil {
		log.Fatalf("create offer: %v", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		log.Fatalf("set local description: %v", err)
	}
	fmt.Println("--- send this offer to the other side ---")
	fmt.Println(encodeDescription(offer))
	fmt.Println("--- paste the answer below and press enter ---")

	answer := readDescription(stdin)
	if err := pc.SetRemoteDescription(answer); err != nil {
		log.Fatalf("set remote description: %v", err)
	}

	channel, err := waitForSCTP(pc, func() (*rawrtc.DataChannel, error) {
		return pc.CreateDataChannel(label, rawrtc.DataChannelInit{})
	})
	if err != nil {
		log.Fatalf("create data channel: %v", err)
	}
	runChat(channel, stdin)
}

func runAnswerer(pc *rawrtc.PeerConnection, stdin *bufio.Reader) {
	fmt.Println("--- paste the remote offer below and press enter ---")
	offer := readDescription(stdin)
	if err := pc.SetRemoteDescription(offer); err != nil {
		log.Fatalf("set remote description: %v", err)
	}

	waitForGatheringComplete(pc)

	answer, err := pc.CreateAnswer()
	if err != nil {
		log.Fatalf("create answer: %v", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		log.Fatalf("set local description: %v", err)
	}
	fmt.Println("--- send this answer to the other side ---")
	fmt.Println(encodeDescription(answer))

	channelCh := make(chan *rawrtc.DataChannel, 1)
	pc.OnDataChannel(func(d *rawrtc.DataChannel) {
		log.Printf("data channel %q opened by remote peer", d.Label())
		channelCh <- d
	})
	select {
	case channel := <-channelCh:
		runChat(channel, stdin)
	case <-time.After(2 * time.Minute):
		log.Fatal("timed out waiting for a data channel")
	}
}

func runChat(channel *rawrtc.DataChannel, stdin *bufio.Reader) {
	channel.OnMessage(func(data []byte) {
		fmt.Printf("peer: %s\n", data)
	})
	channel.OnClose(func() {
		log.Println("data channel closed")
	})

	fmt.Println("--- connected, type a message and press enter ---")
	for {
		line, err := stdin.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		if err := channel.Send([]byte(line)); err != nil {
			log.Printf("send: %v", err)
		}
	}
}

func waitForGatheringComplete(pc *rawrtc.PeerConnection) {
	done := make(chan struct{})
	pc.OnICEGatheringStateChange(func(s ice.GatheringState) {
		if s == ice.GatheringStateComplete {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	})
	select {
	case <-done:
	case <-time.After(10 * time.Second):
	}
}

// waitForSCTP retries opening a data channel until the SCTP association
// above the DTLS handshake is established, spec.md §4.4.
func waitForSCTP(pc *rawrtc.PeerConnection, open func() (*rawrtc.DataChannel, error)) (*rawrtc.DataChannel, error) {
	deadline := time.Now().Add(30 * time.Second)
	for {
		d, err := open()
		if err == nil {
			return d, nil
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func encodeDescription(desc rawrtc.SessionDescription) string {
	payload := desc.Type.String() + "\n" + desc.SDP
	return base64.StdEncoding.EncodeToString([]byte(payload))
}

func readDescription(stdin *bufio.Reader) rawrtc.SessionDescription {
	line, err := stdin.ReadString('\n')
	if err != nil {
		log.Fatalf("read description: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(line))
	if err != nil {
		log.Fatalf("decode description: %v", err)
	}
	parts := strings.SplitN(string(raw), "\n", 2)
	if len(parts) != 2 {
		log.Fatal("malformed description")
	}
	t := rawrtc.SDPTypeOffer
	if parts[0] == "answer" {
		t = rawrtc.SDPTypeAnswer
	}
	return rawrtc.SessionDescription{Type: t, SDP: parts[1]}
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

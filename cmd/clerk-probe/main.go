// Command clerk-probe captures packets on a local interface and publishes
// them to NATS, where a clerk agent running nats:// tap slices meters them.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gopacket/pcap"
	log "github.com/sirupsen/logrus"

	"github.com/google/clerk/internal/model"
	"github.com/google/clerk/internal/tap/natstap"
)

var (
	iface   = flag.String("iface", "", "Interface to capture packets from")
	natsURL = flag.String("nats", "nats://127.0.0.1:4222", "NATS server URL")
	subject = flag.String("subject", "clerk.packets", "Subject to publish packets to")
)

const (
	snapshotLen = 1600
	promiscuous = true
)

func main() {
	flag.Parse()
	if *iface == "" {
		log.Fatal("An interface is required (-iface)")
	}

	publisher, err := natstap.NewPublisher(*natsURL, *subject)
	if err != nil {
		log.Fatalf("Connecting to NATS: %v", err)
	}
	defer publisher.Close()

	handle, err := pcap.OpenLive(*iface, snapshotLen, promiscuous, pcap.BlockForever)
	if err != nil {
		log.Fatalf("Opening device %s: %v", *iface, err)
	}
	defer handle.Close()
	log.Infof("Capturing on %s, publishing to %s", *iface, *subject)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		published := 0
		for {
			data, ci, err := handle.ReadPacketData()
			if err != nil {
				log.Errorf("Reading packet: %v", err)
				continue
			}
			pkt := model.Packet{
				Data:   data,
				Length: ci.Length,
				Nanos:  ci.Timestamp.UnixNano(),
			}
			if err := publisher.Publish(&pkt); err != nil {
				log.Errorf("Publishing packet: %v", err)
				continue
			}
			published++
			if published%10000 == 0 {
				log.Infof("%d packets published", published)
			}
		}
	}()

	<-sigChan
	log.Info("Shutdown signal received")
}

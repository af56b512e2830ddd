// Command clerk is a passive network-flow metering agent: it meters packets
// from a tap into bidirectional 5-tuple flows, enriches them with ASNs, and
// periodically exports them over IPFIX or as CSV.
package main

import (
	"flag"
	"net"
	"net/url"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/google/clerk/internal/api"
	"github.com/google/clerk/internal/asn"
	"github.com/google/clerk/internal/config"
	"github.com/google/clerk/internal/export/clickhouse"
	"github.com/google/clerk/internal/export/csvout"
	"github.com/google/clerk/internal/export/ipfix"
	"github.com/google/clerk/internal/meter"
	"github.com/google/clerk/internal/metrics"
	"github.com/google/clerk/internal/model"
	"github.com/google/clerk/internal/tap"
	"github.com/google/clerk/internal/tap/afpkt"
	"github.com/google/clerk/internal/tap/natstap"
	"github.com/google/clerk/internal/tap/pcapf"
)

var (
	testimony           = flag.String("testimony", "", "Packet tap to meter: an interface name (AF_PACKET), pcap:<file>, or nats://host:port/<subject>")
	collector           = flag.String("collector", "127.0.0.1:6555", "Socket address of the IPFIX collector; 'stdout' writes CSV instead")
	uploadEverySecs     = flag.Float64("upload_every_secs", 60, "Export flows to the collector once every X seconds")
	flowTimeoutSecs     = flag.Float64("flow_timeout_secs", 60*5, "Consider flows idle after X seconds without traffic")
	asnsCSV             = flag.String("asns_csv", "", "CSV of IP ranges to ASNs; empty disables ASN enrichment")
	asnsRereadEverySecs = flag.Float64("asns_reread_every_secs", 86400, "Re-read the ASN CSV once every X seconds")
	configPath          = flag.String("config", "", "Optional YAML config enabling extra exporters and tap tuning")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("Loading config: %v", err)
		}
	}

	clock := model.NewSystemClock()
	factory := &meter.Factory{}

	var asns *asn.Map
	if *asnsCSV != "" {
		var err error
		if asns, err = asn.LoadCSVFile(*asnsCSV); err != nil {
			log.Fatalf("Loading ASN CSV: %v", err)
		}
	}

	exporters := buildExporters(cfg, factory, clock)

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg.API.Listen)
	}

	source := buildSource(*testimony, cfg)
	processor := tap.NewProcessor(source, factory)
	if err := processor.StartWorkers(); err != nil {
		log.Fatalf("Starting tap workers: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	tick := func(last bool) {
		nowNS := clock.NowNanos()
		cutoffNS := nowNS - int64(*flowTimeoutSecs*1e9)
		if cutoffNS < 0 {
			cutoffNS = 0
		}
		factory.SetCutoffNanos(uint64(cutoffNS))
		if last {
			factory.SetForcedEnd(true)
		}
		reduced := tap.Reduce(processor.Gather(last)).(*meter.State)
		table := reduced.Table()
		if asns != nil {
			for key, stats := range table {
				stats.SrcASN = asns.Lookup(key.SrcIP)
				stats.DstASN = asns.Lookup(key.DstIP)
				table[key] = stats
			}
		}
		metrics.GatheredFlows.Set(float64(len(table)))
		if apiServer != nil {
			apiServer.SetSnapshot(table, factory, time.Unix(0, nowNS))
		}
		for _, exporter := range exporters {
			if err := exporter.Send(table); err != nil {
				log.Errorf("Export failed: %v", err)
			}
		}
	}

	lastUploadNS := clock.NowNanos()
	asnReloadAtNS := lastUploadNS + int64(*asnsRereadEverySecs*1e9)
	for {
		nextNS := lastUploadNS + int64(*uploadEverySecs*1e9)
		wait := time.Duration(nextNS - clock.NowNanos())
		if wait < 0 {
			wait = 0
		}
		select {
		case <-time.After(wait):
			lastUploadNS = clock.NowNanos()
			tick(false)
			if asns != nil && clock.NowNanos() >= asnReloadAtNS {
				fresh, err := asn.LoadCSVFile(*asnsCSV)
				if err != nil {
					log.Fatalf("Reloading ASN CSV: %v", err)
				}
				asns = fresh
				asnReloadAtNS += int64(*asnsRereadEverySecs * 1e9)
				metrics.ASNReloads.Inc()
			}
		case sig := <-sigChan:
			log.Infof("Received %v, exporting final state", sig)
			tick(true)
			return
		}
	}
}

// buildExporters wires the collector flag plus any config-enabled exporters.
func buildExporters(cfg *config.Config, factory *meter.Factory, clock model.Clock) []model.Exporter {
	var exporters []model.Exporter
	if *collector == "stdout" {
		exporters = append(exporters, csvout.NewWriter(os.Stdout, factory))
	} else {
		addr, err := net.ResolveUDPAddr("udp", *collector)
		if err != nil {
			log.Fatalf("Bad collector address %q: %v", *collector, err)
		}
		conn, err := net.DialUDP("udp", nil, addr)
		if err != nil {
			log.Fatalf("Connect to collector %s: %v", *collector, err)
		}
		exporters = append(exporters, ipfix.NewUDPSender(conn, factory, clock))
	}
	if cfg.ClickHouse.Enabled {
		writer, err := clickhouse.NewWriter(clickhouse.Options{
			Host:     cfg.ClickHouse.Host,
			Port:     cfg.ClickHouse.Port,
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password,
		}, factory, clock)
		if err != nil {
			log.Fatalf("ClickHouse exporter: %v", err)
		}
		exporters = append(exporters, writer)
	}
	if cfg.NATSExport.Enabled {
		nc, err := nats.Connect(cfg.NATSExport.URL)
		if err != nil {
			log.Fatalf("NATS exporter: connect %s: %v", cfg.NATSExport.URL, err)
		}
		exporters = append(exporters, ipfix.NewNATSSender(nc, cfg.NATSExport.Subject, factory, clock))
	}
	return exporters
}

// buildSource interprets the tap name: pcap:<path> replays a capture file,
// nats:// subscribes to a probe stream, anything else is a local interface
// tapped via AF_PACKET fan-out.
func buildSource(name string, cfg *config.Config) tap.Source {
	if name == "" {
		log.Fatal("A packet tap is required (-testimony)")
	}
	workers := cfg.Tap.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	switch {
	case strings.HasPrefix(name, "pcap:"):
		return pcapf.NewSource(strings.TrimPrefix(name, "pcap:"))
	case strings.HasPrefix(name, "nats://"):
		u, err := url.Parse(name)
		if err != nil {
			log.Fatalf("Bad tap URL %q: %v", name, err)
		}
		subject := strings.TrimPrefix(u.Path, "/")
		if subject == "" {
			subject = "clerk.packets"
		}
		return natstap.NewSource("nats://"+u.Host, subject, cfg.Tap.NATSQueue, workers)
	default:
		return afpkt.NewSource(name, workers, cfg.Tap.FanoutID, cfg.Tap.BatchSize)
	}
}

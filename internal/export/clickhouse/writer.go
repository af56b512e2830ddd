// Package clickhouse batches exported flow records into a ClickHouse table,
// for ad-hoc analysis alongside the IPFIX feed.
package clickhouse

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	log "github.com/sirupsen/logrus"

	"github.com/google/clerk/internal/flow"
	"github.com/google/clerk/internal/meter"
	"github.com/google/clerk/internal/metrics"
	"github.com/google/clerk/internal/model"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS clerk_flows (
    ExportTime  DateTime,
    FlowID      UInt64,
    Network     UInt8,
    SrcIP       String,
    DstIP       String,
    SrcPort     UInt16,
    DstPort     UInt16,
    VLAN        UInt16,
    TOS         UInt8,
    Protocol    UInt8,
    ICMPType    UInt8,
    ICMPCode    UInt8,
    SrcASN      UInt32,
    DstASN      UInt32,
    Bytes       UInt64,
    Packets     UInt64,
    FlowStart   DateTime64(9),
    FlowEnd     DateTime64(9),
    EndReason   UInt8
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(ExportTime)
ORDER BY (ExportTime, FlowID);
`

// Options configures the ClickHouse connection.
type Options struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
}

// Writer inserts one row per exported flow. It implements model.Exporter.
type Writer struct {
	conn    driver.Conn
	factory *meter.Factory
	clock   model.Clock
}

// NewWriter connects, ensures the table exists, and returns the exporter.
func NewWriter(opts Options, factory *meter.Factory, clock model.Clock) (*Writer, error) {
	conn, err := connect(opts)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: connect: %w", err)
	}
	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		return nil, fmt.Errorf("clickhouse: create table: %w", err)
	}
	log.Info("Connected to ClickHouse and ensured clerk_flows exists")
	return &Writer{conn: conn, factory: factory, clock: clock}, nil
}

func connect(opts Options) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping %s: %w", addr, err)
	}
	return conn, nil
}

// Send implements model.Exporter.
func (w *Writer) Send(flows flow.Table) error {
	batch, err := w.conn.PrepareBatch(context.Background(), "INSERT INTO clerk_flows")
	if err != nil {
		metrics.ExportErrors.WithLabelValues("clickhouse").Inc()
		return fmt.Errorf("clickhouse: prepare batch: %w", err)
	}
	exportTime := time.Unix(0, w.clock.NowNanos())
	count := 0
	for key, stats := range flows {
		endReason := w.factory.EndReason(&stats)
		if stats.Packets == 0 && endReason == flow.EndActiveTimeout {
			continue
		}
		count++
		err = batch.Append(
			exportTime,
			key.Hash(),
			key.Network,
			ipString(key.SrcIP, key.Network),
			ipString(key.DstIP, key.Network),
			key.SrcPort,
			key.DstPort,
			key.VLAN,
			key.TOS,
			key.Proto,
			key.ICMPType,
			key.ICMPCode,
			stats.SrcASN,
			stats.DstASN,
			stats.Bytes,
			stats.Packets,
			time.Unix(0, int64(stats.FirstNS)),
			time.Unix(0, int64(stats.LastNS)),
			endReason,
		)
		if err != nil {
			metrics.ExportErrors.WithLabelValues("clickhouse").Inc()
			return fmt.Errorf("clickhouse: append flow: %w", err)
		}
	}
	if count == 0 {
		return batch.Abort()
	}
	if err := batch.Send(); err != nil {
		metrics.ExportErrors.WithLabelValues("clickhouse").Inc()
		return fmt.Errorf("clickhouse: send batch: %w", err)
	}
	metrics.FlowsExported.WithLabelValues("clickhouse").Add(float64(count))
	log.Infof("Wrote %d flows to ClickHouse", count)
	return nil
}

func ipString(ip [16]byte, network uint8) string {
	if network == flow.NetworkIPv4 {
		return fmt.Sprintf("%d.%d.%d.%d", ip[12], ip[13], ip[14], ip[15])
	}
	return net.IP(ip[:]).String()
}

//go:build !linux

package afpkt

import (
	"errors"

	"github.com/google/clerk/internal/tap"
)

type Source struct{}

func NewSource(iface string, workers int, fanoutID uint16, batchSize int) *Source {
	return &Source{}
}

func (s *Source) FanoutSize() int { return 0 }

func (s *Source) Open(index int) (tap.Conn, error) {
	return nil, errors.New("afpkt: AF_PACKET taps require linux")
}

func (s *Source) Close() error { return nil }

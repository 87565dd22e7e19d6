// ABOUTME: mDNS discovery for two-process mode
// ABOUTME: A serving device advertises itself; a joining device browses for it
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hactar-dev/hactar-sim/internal/netlink"
	"github.com/hashicorp/mdns"
	"go.uber.org/zap"
)

// ServiceType is the mDNS service advertised by a serving device
const ServiceType = "_hactar._tcp"

// Config holds discovery configuration
type Config struct {
	Device string // advertised instance name
	Port   int
}

// Manager handles mDNS operations
type Manager struct {
	config Config
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	peers  chan *PeerInfo
}

// PeerInfo describes a discovered device
type PeerInfo struct {
	Name string
	Host string
	Port int
}

// Addr returns the peer's host:port
func (p *PeerInfo) Addr() string {
	return net.JoinHostPort(p.Host, fmt.Sprint(p.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config: config,
		logger: logger.Named("discovery"),
		ctx:    ctx,
		cancel: cancel,
		peers:  make(chan *PeerInfo, 10),
	}
}

// Advertise announces this device until Stop is called
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.Device,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"path=" + netlink.Path},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.logger.Info("advertising",
		zap.String("device", m.config.Device),
		zap.String("service", ServiceType),
		zap.Int("port", m.config.Port))

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for serving devices until Stop is called
func (m *Manager) Browse() {
	go m.browseLoop()
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				peer := toPeer(entry, m.config.Device)
				if peer == nil {
					continue
				}

				m.logger.Info("discovered peer", zap.String("name", peer.Name), zap.String("addr", peer.Addr()))

				select {
				case m.peers <- peer:
				case <-m.ctx.Done():
				}
			}
		}()

		params := mdns.DefaultParams(ServiceType)
		params.Entries = entries
		params.Timeout = 3 * time.Second
		params.DisableIPv6 = true

		if err := mdns.Query(params); err != nil {
			m.logger.Debug("mdns query failed", zap.Error(err))
		}
		close(entries)
		<-done
	}
}

// toPeer converts an entry, skipping ourselves and entries without an address
func toPeer(entry *mdns.ServiceEntry, self string) *PeerInfo {
	if entry.AddrV4 == nil || entry.Port == 0 {
		return nil
	}
	name := instanceName(entry.Name)
	if name == self {
		return nil
	}
	return &PeerInfo{Name: name, Host: entry.AddrV4.String(), Port: entry.Port}
}

// instanceName strips the service suffix from an mDNS entry name
func instanceName(full string) string {
	if i := strings.Index(full, "."+ServiceType); i >= 0 {
		return strings.ReplaceAll(full[:i], `\ `, " ")
	}
	return strings.TrimSuffix(full, ".")
}

// Peers returns the channel of discovered devices
func (m *Manager) Peers() <-chan *PeerInfo {
	return m.peers
}

// WaitForPeer browses until the first peer shows up or ctx is done
func (m *Manager) WaitForPeer(ctx context.Context) (*PeerInfo, error) {
	m.Browse()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("no peer found: %w", ctx.Err())
	case peer := <-m.peers:
		return peer, nil
	}
}

// Stop stops advertising and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// getLocalIPs returns local IPv4 addresses of interfaces that are up
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}

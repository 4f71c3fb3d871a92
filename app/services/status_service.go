package services

import (
	"net"
	"time"
)

// StreamStatus is implemented by the websocket hub
type StreamStatus interface {
	GetServerStatus() map[string]interface{}
}

// StatusService gathers the runtime state of the background components for
// the status endpoint
type StatusService struct {
	stream  StreamStatus
	monitor *StockMonitorService
	mcp     *MCPService
	started time.Time
}

// NewStatusService creates a status service. Any component may be nil.
func NewStatusService(stream StreamStatus, monitor *StockMonitorService, mcp *MCPService) *StatusService {
	return &StatusService{
		stream:  stream,
		monitor: monitor,
		mcp:     mcp,
		started: time.Now(),
	}
}

// GetStatus returns one section per component plus the local addresses
// mobile clients can connect to
func (s *StatusService) GetStatus() map[string]interface{} {
	status := map[string]interface{}{
		"started_at": s.started.UTC().Format(time.RFC3339),
		"uptime":     time.Since(s.started).Round(time.Second).String(),
		"local_ips":  getLocalIPAddresses(),
	}

	if s.stream != nil {
		status["websocket"] = s.stream.GetServerStatus()
	} else {
		status["websocket"] = map[string]interface{}{"running": false}
	}
	if s.monitor != nil {
		status["stock_monitor"] = s.monitor.GetStatus()
	}
	if s.mcp != nil {
		status["mcp"] = s.mcp.GetStatus()
	}
	return status
}

// getLocalIPAddresses returns the IPv4 addresses of the interfaces that are up
func getLocalIPAddresses() []string {
	ips := []string{}

	interfaces, err := net.Interfaces()
	if err != nil {
		return ips
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.IsLoopback() {
				continue
			}
			if ip = ip.To4(); ip != nil {
				ips = append(ips, ip.String())
			}
		}
	}
	return ips
}
